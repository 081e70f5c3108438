package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"lootman.ai/internal/sim/model"
)

const (
	RadiusZeroUnbounded = "unbounded"
	RadiusZeroReject    = "reject"

	CellScanLoaded = "loaded_cells"
	CellScanPreVis = "previs"

	RetentionEvictOnUnload = "evict_on_unload"
	RetentionKeep          = "keep"
)

type Tuning struct {
	LootingRange   float64 `yaml:"looting_range"`
	RadiusZero     string  `yaml:"radius_zero"`
	CellScan       string  `yaml:"cell_scan"`
	CellRetention  string  `yaml:"cell_retention"`
	AffixFlagValue uint32  `yaml:"affix_flag_value"`

	ScrapAllRecipes bool `yaml:"scrap_all_recipes"`
	ScrapMaxDepth   int  `yaml:"scrap_max_depth"`

	LootableTypes     []model.FormType `yaml:"lootable_types"`
	CacheTriggerTypes []model.FormType `yaml:"cache_trigger_types"`

	// Settings is the flat integer key space read by ConfigInt.
	Settings map[string]int `yaml:"settings"`
}

// DefaultSettings mirrors the shipped in-game config.
func DefaultSettings() map[string]int {
	return map[string]int{
		"hotkey_open_inevtnory_combination": 160,
		"hotkey_open_inevtnory_main":        76,
		"hotkey_toggle_looting_combination": 163,
		"hotkey_toggle_looting_main":        76,
		"looting_alch_enabled":              1,
		"looting_ammo_enabled":              1,
		"looting_armo_enabled":              1,
		"looting_book_enabled":              0,
		"looting_book_magazine_only":        1,
		"looting_cont_enabled":              1,
		"looting_flor_enabled":              1,
		"looting_ingr_enabled":              0,
		"looting_misc_enabled":              1,
		"looting_npc__enabled":              1,
		"looting_range":                     800,
		"looting_weap_enabled":              1,
		"lootman_carry_weight":              1000000,
		"lootman_overweight_ignore":         1,
	}
}

func Defaults() Tuning {
	return Tuning{
		LootingRange:      800,
		RadiusZero:        RadiusZeroUnbounded,
		CellScan:          CellScanLoaded,
		CellRetention:     RetentionEvictOnUnload,
		AffixFlagValue:    25,
		ScrapMaxDepth:     16,
		LootableTypes:     model.DefaultLootableTypes(),
		CacheTriggerTypes: model.DefaultCacheTriggerTypes(),
		Settings:          DefaultSettings(),
	}
}

// Load reads path over Defaults. Keys absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	// Settings starts from DefaultSettings; yaml merges file keys into it.
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("lootman.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("lootman.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults. looting_range in Settings tracks
// LootingRange so both surfaces agree.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.RadiusZero == "" {
		t.RadiusZero = d.RadiusZero
	}
	if t.CellScan == "" {
		t.CellScan = d.CellScan
	}
	if t.CellRetention == "" {
		t.CellRetention = d.CellRetention
	}
	if t.AffixFlagValue == 0 {
		t.AffixFlagValue = d.AffixFlagValue
	}
	if t.ScrapMaxDepth <= 0 {
		t.ScrapMaxDepth = d.ScrapMaxDepth
	}
	if len(t.LootableTypes) == 0 {
		t.LootableTypes = d.LootableTypes
	}
	if len(t.CacheTriggerTypes) == 0 {
		t.CacheTriggerTypes = d.CacheTriggerTypes
	}
	if t.Settings == nil {
		t.Settings = DefaultSettings()
	}
	t.Settings["looting_range"] = int(t.LootingRange)
}

func (t Tuning) Validate() error {
	if t.LootingRange < 0 {
		return fmt.Errorf("looting_range must be >= 0")
	}
	switch t.RadiusZero {
	case RadiusZeroUnbounded, RadiusZeroReject:
	default:
		return fmt.Errorf("radius_zero: unknown value %q", t.RadiusZero)
	}
	switch t.CellScan {
	case CellScanLoaded, CellScanPreVis:
	default:
		return fmt.Errorf("cell_scan: unknown value %q", t.CellScan)
	}
	switch t.CellRetention {
	case RetentionEvictOnUnload, RetentionKeep:
	default:
		return fmt.Errorf("cell_retention: unknown value %q", t.CellRetention)
	}
	for _, ft := range t.LootableTypes {
		if ft == model.TypeAny || ft == model.TypeNone {
			return fmt.Errorf("lootable_types: %s is not a concrete type", ft)
		}
	}
	return nil
}

// ConfigInt returns the integer setting for key, or ok=false when unknown.
func (t Tuning) ConfigInt(key string) (int, bool) {
	v, ok := t.Settings[key]
	return v, ok
}

// SettingKeys lists known setting keys, sorted.
func (t Tuning) SettingKeys() []string {
	out := make([]string, 0, len(t.Settings))
	for k := range t.Settings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Digest hashes the JSON form of t. Map keys marshal sorted, so equal
// tunings share a digest.
func (t Tuning) Digest() (string, []byte) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", nil
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b
}
