package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"lootman.ai/internal/sim/model"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load("../../../configs/lootman.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.LootingRange != 800 || tu.AffixFlagValue != 25 || tu.ScrapMaxDepth != 16 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if len(tu.LootableTypes) != 8 || tu.LootableTypes[0] != model.TypePotion {
		t.Fatalf("lootable types: %v", tu.LootableTypes)
	}
	if v, ok := tu.ConfigInt("lootman_carry_weight"); !ok || v != 1000000 {
		t.Fatalf("carry weight: %d ok=%v", v, ok)
	}
	if _, ok := tu.ConfigInt("nope"); ok {
		t.Fatalf("unknown key should not resolve")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lootman.yaml")
	body := "looting_range: 1200\nsettings:\n  looting_book_enabled: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.CellScan != CellScanLoaded || tu.CellRetention != RetentionEvictOnUnload {
		t.Fatalf("defaults not applied: %+v", tu)
	}
	if v, _ := tu.ConfigInt("looting_range"); v != 1200 {
		t.Fatalf("looting_range setting should follow the top-level key, got %d", v)
	}
	if v, _ := tu.ConfigInt("looting_book_enabled"); v != 1 {
		t.Fatalf("override lost: %d", v)
	}
	if v, _ := tu.ConfigInt("lootman_overweight_ignore"); v != 1 {
		t.Fatalf("default setting lost: %d", v)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []string{
		"radius_zero: sometimes\n",
		"cell_scan: everything\n",
		"lootable_types: [\"*\"]\n",
		"lootable_types: [WAT]\n",
		"looting_range: -1\n",
	}
	for _, body := range cases {
		path := filepath.Join(t.TempDir(), "lootman.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestSettingKeys_Sorted(t *testing.T) {
	keys := Defaults().SettingKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
