// Package catalog loads the static per-center code catalogs (indicator
// definitions, lab-parameter equivalences, medication groups, vascular
// access types, dialysis modalities and clinical test codes) into one
// immutable bundle shared read-only for the life of the process.
package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Catalog document names inside the catalog directory.
const (
	indicatorsFile = "indicesJSON.json"
	accessesFile   = "accesos_vasculares.json"
	modalitiesFile = "codigosHD.json"
	testsFile      = "transformed_grouped_tests.json"
	equivFile      = "equivalencias.json"
)

// Bundle aggregates every catalog. Built once at startup and never mutated
// afterwards, so it is safe to share across a whole run without locking.
type Bundle struct {
	Indicators   *Indicators
	Equivalences *Equivalences
	Meds         *Meds
	Accesses     *Accesses
	Modalities   *Modalities
	Tests        *Tests
}

// Load reads every catalog document under dir. The indicator catalog is
// required; the per-center code catalogs degrade to empty (the templates
// then receive the sentinel, per-center gaps are business as usual).
func Load(dir string, log zerolog.Logger) (*Bundle, error) {
	indicators, err := LoadIndicators(filepath.Join(dir, indicatorsFile), log)
	if err != nil {
		return nil, err
	}

	equiv := NewEquivalences(log)
	if path := filepath.Join(dir, equivFile); fileExists(path) {
		equiv, err = NewEquivalencesFromFile(path, log)
		if err != nil {
			return nil, err
		}
	}

	meds, err := LoadMeds(dir, log)
	if err != nil {
		return nil, err
	}
	accesses, err := LoadAccesses(filepath.Join(dir, accessesFile), log)
	if err != nil {
		return nil, err
	}
	modalities, err := LoadModalities(filepath.Join(dir, modalitiesFile), log)
	if err != nil {
		return nil, err
	}
	tests, err := LoadTests(filepath.Join(dir, testsFile), log)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Indicators:   indicators,
		Equivalences: equiv,
		Meds:         meds,
		Accesses:     accesses,
		Modalities:   modalities,
		Tests:        tests,
	}, nil
}

// SourceKeys returns every key a source may be registered under in the
// catalogs: its slot code, its full database path, the file basename and
// the basename without the .gdb extension.
func SourceKeys(code, database string) []string {
	db := strings.ToLower(strings.TrimSpace(database))
	file := strings.ToLower(filepath.Base(db))
	keys := []string{strings.ToLower(strings.TrimSpace(code))}
	if db != "" {
		keys = append(keys, db, file, strings.TrimSuffix(file, ".gdb"))
	}
	return keys
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
