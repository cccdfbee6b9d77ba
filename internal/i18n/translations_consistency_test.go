package i18n

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"gopkg.in/yaml.v2"

	"github.com/raidward/raidward/resources"
)

func loadCatalogs(t *testing.T) map[string]map[string]string {
	t.Helper()

	catalogs := make(map[string]map[string]string)
	err := fs.WalkDir(resources.FS, "i18n", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".yml") {
			return err
		}
		raw, err := resources.FS.ReadFile(path)
		if err != nil {
			return err
		}
		translations := make(map[string]string)
		if err := yaml.Unmarshal(raw, &translations); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		lang := strings.TrimSuffix(filepath.Base(path), ".yml")
		catalogs[lang] = translations
		return nil
	})
	if err != nil {
		t.Fatalf("walk catalogs: %v", err)
	}
	return catalogs
}

func TestAllCatalogsShareTheSameKeys(t *testing.T) {
	t.Parallel()

	catalogs := loadCatalogs(t)
	if len(catalogs) == 0 {
		t.Fatalf("no catalogs embedded")
	}

	var reference []string
	var referenceLang string
	for lang, translations := range catalogs {
		keys := make([]string, 0, len(translations))
		for key, value := range translations {
			if strings.TrimSpace(value) == "" {
				t.Fatalf("%s: empty translation for %q", lang, key)
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		if reference == nil {
			reference, referenceLang = keys, lang
			continue
		}
		if !reflect.DeepEqual(keys, reference) {
			t.Fatalf("catalog %s keys differ from %s:\n%v\nvs\n%v", lang, referenceLang, keys, reference)
		}
	}
}

func TestEveryCatalogLanguageIsDeclared(t *testing.T) {
	t.Parallel()

	for lang := range loadCatalogs(t) {
		if !Supported(lang) {
			t.Fatalf("catalog %s not in the supported language list", lang)
		}
	}
}

func TestGetFallsBackToEnglishKey(t *testing.T) {
	t.Parallel()

	if got := Get("Raid protection", "en"); got != "Raid protection" {
		t.Fatalf("en: %q", got)
	}
	if got := Get("Raid protection", "fr"); got == "" || got == "Raid protection" {
		t.Fatalf("fr translation missing: %q", got)
	}
	if got := Get("some unknown key", "fr"); got != "some unknown key" {
		t.Fatalf("unknown key fallback: %q", got)
	}
	if got := Get("Raid protection", "xx"); got != "Raid protection" {
		t.Fatalf("unknown language fallback: %q", got)
	}
}
