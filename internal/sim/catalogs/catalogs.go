package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lootman.ai/internal/sim/model"
)

type Catalogs struct {
	Forms     FormCatalog
	Crafting  RecipeCatalog
	Injection InjectionCatalog
}

type FormCatalog struct {
	Plugins []PluginDef
	ByID    map[model.FormID]*model.Form
	// ByEditorID only holds forms that declare an editor id.
	ByEditorID map[string]*model.Form
	Digest     string
}

type PluginDef struct {
	Name  string `json:"name"`
	Index uint8  `json:"index"`
}

type FormDef struct {
	ID       model.FormID   `json:"id"`
	Type     model.FormType `json:"type"`
	Flags    uint32         `json:"flags,omitempty"`
	Name     string         `json:"name,omitempty"`
	EditorID string         `json:"editor_id,omitempty"`
	Keywords []model.FormID `json:"keywords,omitempty"`

	Components  []ComponentDef `json:"components,omitempty"`
	ScrapItem   model.FormID   `json:"scrap_item,omitempty"`
	ScrapScalar model.FormID   `json:"scrap_scalar,omitempty"`
	Value       float64        `json:"value,omitempty"`
	Members     []model.FormID `json:"members,omitempty"`
	ModFlags    uint32         `json:"mod_flags,omitempty"`
}

type ComponentDef struct {
	Form  model.FormID `json:"form"`
	Count uint32       `json:"count"`
}

type formsFile struct {
	Plugins []PluginDef `json:"plugins"`
	Forms   []FormDef   `json:"forms"`
}

type RecipeCatalog struct {
	List   []model.Recipe
	Digest string
}

type RecipeDef struct {
	ID         model.FormID   `json:"id"`
	Created    model.FormID   `json:"created"`
	Components []ComponentDef `json:"components"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadForms(filepath.Join(configDir, "forms.json"), &c.Forms); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Crafting); err != nil {
		return nil, err
	}
	if err := loadInjection(filepath.Join(configDir, "injection.json"), &c.Injection); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) LookupForm(id model.FormID) (*model.Form, bool) {
	f, ok := c.Forms.ByID[id]
	return f, ok
}

func (c *Catalogs) Recipes() []model.Recipe { return c.Crafting.List }

func (c *Catalogs) LookupEditorID(editorID string) (*model.Form, bool) {
	f, ok := c.Forms.ByEditorID[editorID]
	return f, ok
}

// ListsContaining returns the FLST forms that list id, ordered by form id.
func (c *Catalogs) ListsContaining(id model.FormID) []*model.Form {
	var out []*model.Form
	for _, f := range c.Forms.ByID {
		if f.Type == model.TypeFormList && f.Contains(id) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadForms(path string, out *FormCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := Validate("forms", raw); err != nil {
		return fmt.Errorf("forms.json: %w", err)
	}

	var file formsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("forms.json: %w", err)
	}
	out.Plugins = file.Plugins
	out.ByID = make(map[model.FormID]*model.Form, len(file.Forms))
	out.ByEditorID = map[string]*model.Form{}
	for _, d := range file.Forms {
		if d.ID == 0 {
			return fmt.Errorf("forms.json: zero form id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("forms.json: duplicate form %s", d.ID)
		}
		f := d.build()
		out.ByID[f.ID] = f
		if f.EditorID != "" {
			out.ByEditorID[f.EditorID] = f
		}
	}
	return nil
}

// build resolves the typed payload once so callers never inspect the raw def.
func (d FormDef) build() *model.Form {
	f := &model.Form{
		ID:       d.ID,
		Type:     d.Type,
		Flags:    d.Flags,
		Name:     d.Name,
		EditorID: d.EditorID,
		Keywords: d.Keywords,
	}
	switch d.Type {
	case model.TypeMisc:
		m := &model.MiscData{}
		for _, c := range d.Components {
			m.Components = append(m.Components, model.MiscComponent{Component: c.Form, Count: c.Count})
		}
		f.Misc = m
	case model.TypeComponent:
		f.Component = &model.ComponentData{ScrapItem: d.ScrapItem, ScrapScalar: d.ScrapScalar}
	case model.TypeGlobal:
		f.Global = &model.GlobalData{Value: d.Value}
	case model.TypeFormList:
		f.List = &model.ListData{Forms: d.Members}
	case model.TypeMod:
		f.Mod = &model.ModData{Flags: d.ModFlags}
	}
	return f
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := Validate("recipes", raw); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.List = make([]model.Recipe, 0, len(defs))
	for _, d := range defs {
		r := model.Recipe{ID: d.ID, Created: d.Created}
		for _, c := range d.Components {
			r.Components = append(r.Components, model.RecipeComponent{Form: c.Form, Count: c.Count})
		}
		out.List = append(out.List, r)
	}
	return nil
}
