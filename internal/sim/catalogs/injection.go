package catalogs

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"lootman.ai/internal/sim/model"
)

// InjectionCatalog holds named form lists written as "Plugin.esp|lowerHexID"
// entries, to be injected into in-game form lists.
type InjectionCatalog struct {
	Lists  map[string][]string
	Digest string
}

func loadInjection(path string, out *InjectionCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Injection data is optional.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.Lists = map[string][]string{}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := Validate("injection", raw); err != nil {
		return fmt.Errorf("injection.json: %w", err)
	}
	out.Lists = map[string][]string{}
	if err := json.Unmarshal(raw, &out.Lists); err != nil {
		return fmt.Errorf("injection.json: %w", err)
	}
	return nil
}

func (c *Catalogs) plugin(name string) (PluginDef, bool) {
	for _, p := range c.Forms.Plugins {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PluginDef{}, false
}

// ResolveInjection resolves the named list into forms. Entries that cannot be
// resolved are skipped and reported as warnings; a missing list resolves to nothing.
func (c *Catalogs) ResolveInjection(name string) (forms []*model.Form, warnings []string) {
	entries, ok := c.Injection.Lists[name]
	if !ok {
		return nil, nil
	}
	for _, e := range entries {
		pluginName, lower, found := strings.Cut(e, "|")
		if !found {
			continue
		}
		p, ok := c.plugin(pluginName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("plugin not found [%s]", pluginName))
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(lower), 16, 32)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("bad form id [%s]", e))
			continue
		}
		id := model.FormID(uint32(p.Index)<<24 | uint32(v)&0x00FFFFFF)
		f, ok := c.LookupForm(id)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("form not found [plugin=%s lower=%s id=%s]", pluginName, lower, id))
			continue
		}
		forms = append(forms, f)
	}
	return forms, warnings
}
