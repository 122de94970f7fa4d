package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testTable() Table {
	return Table{
		"Apple": {
			"iPhone 12": {"Screen": 8500, "Battery": 4200},
			"iPhone 13": {"Screen": 10500},
		},
		"Samsung": {
			"Galaxy S21": {"Screen": 7800, "Charging Port": 1800},
		},
		"Oneplus": {
			"Nord": {"Screen": 6200},
		},
	}
}

func TestListBrandsSorted(t *testing.T) {
	c := New(testTable())
	want := []string{"Apple", "Oneplus", "Samsung"}
	if got := c.ListBrands(); !reflect.DeepEqual(got, want) {
		t.Errorf("ListBrands() = %v, want %v", got, want)
	}
}

func TestReferentialConsistency(t *testing.T) {
	c := New(testTable())
	for _, b := range c.ListBrands() {
		for _, m := range c.ListModels(b) {
			for _, i := range c.ListIssues(b, m) {
				if _, ok := c.GetPrice(b, m, i); !ok {
					t.Errorf("GetPrice(%q, %q, %q) absent but issue listed", b, m, i)
				}
			}
		}
	}
	if _, ok := c.GetPrice("Apple", "iPhone 12", "Camera"); ok {
		t.Error("GetPrice returned a price for an unlisted issue")
	}
	if models := c.ListModels("Nokia"); len(models) != 0 {
		t.Errorf("ListModels for absent brand = %v, want empty", models)
	}
}

func TestSearchScoringTiers(t *testing.T) {
	c := New(testTable())

	cases := []struct {
		query     string
		wantBrand string
		wantModel string
		wantScore int
	}{
		{"apple iphone 12", "Apple", "iPhone 12", 100},
		{"samsung", "Samsung", "Galaxy S21", 80},
		{"galaxy s21", "Samsung", "Galaxy S21", 80},
		{"pple iphone 1", "Apple", "iPhone 12", 60},
		{"nord", "Oneplus", "Nord", 80},
		{"s2", "Samsung", "Galaxy S21", 60},
	}
	for _, tc := range cases {
		got := c.SearchGlobally(tc.query, 10)
		if len(got) == 0 {
			t.Errorf("SearchGlobally(%q) returned no matches", tc.query)
			continue
		}
		top := got[0]
		if top.Brand != tc.wantBrand || top.Model != tc.wantModel || top.Score != tc.wantScore {
			t.Errorf("SearchGlobally(%q) top = %s/%s score %d, want %s/%s score %d",
				tc.query, top.Brand, top.Model, top.Score, tc.wantBrand, tc.wantModel, tc.wantScore)
		}
	}

	if got := c.SearchGlobally("nokia 3310", 10); len(got) != 0 {
		t.Errorf("SearchGlobally for unmatched query = %v, want none", got)
	}
}

func TestSearchDeterministic(t *testing.T) {
	c := New(testTable())
	first := c.SearchGlobally("iphone", 5)
	for range [10]int{} {
		if got := c.SearchGlobally("iphone", 5); !reflect.DeepEqual(got, first) {
			t.Fatalf("SearchGlobally not deterministic: %v vs %v", got, first)
		}
	}
}

func TestSearchLimit(t *testing.T) {
	c := New(testTable())
	if got := c.SearchGlobally("s", 2); len(got) > 2 {
		t.Errorf("SearchGlobally limit 2 returned %d matches", len(got))
	}
	if got := c.SearchGlobally("iphone", 0); got != nil {
		t.Errorf("SearchGlobally limit 0 = %v, want nil", got)
	}
}

func TestLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repairs.json")
	if err := os.WriteFile(path, []byte(`{"Apple":{"iPhone 12":{"Screen":8500}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if price, ok := c.GetPrice("Apple", "iPhone 12", "Screen"); !ok || price != 8500 {
		t.Errorf("GetPrice after Load = %d, %v", price, ok)
	}

	// A bad edit keeps the previous snapshot.
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Error("Reload of invalid JSON did not report an error")
	}
	if price, ok := c.GetPrice("Apple", "iPhone 12", "Screen"); !ok || price != 8500 {
		t.Errorf("snapshot lost after failed reload: %d, %v", price, ok)
	}

	// A good edit is picked up.
	if err := os.WriteFile(path, []byte(`{"Apple":{"iPhone 12":{"Screen":9000}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if price, _ := c.GetPrice("Apple", "iPhone 12", "Screen"); price != 9000 {
		t.Errorf("GetPrice after reload = %d, want 9000", price)
	}
}
