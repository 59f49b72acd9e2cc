package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Tests maps instrument names to per-source numeric test codes. The
// grouped-tests document has the shape
// {"DOWNTON": {"/NFS/restores/NF6_HRJC.gdb": 104, ...}, ...}.
type Tests struct {
	byInstrument map[string]map[string]int
}

// LoadTests reads the grouped-tests document. A missing file yields an
// empty catalog; test-code tokens then stay unresolved for detection.
func LoadTests(path string, log zerolog.Logger) (*Tests, error) {
	t := &Tests{byInstrument: map[string]map[string]int{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", path).Msg("grouped-tests catalog missing")
			return t, nil
		}
		return nil, fmt.Errorf("reading grouped-tests catalog: %w", err)
	}

	var doc map[string]map[string]int
	if err := json.Unmarshal(stripBOM(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing grouped-tests catalog %s: %w", path, err)
	}
	for instrument, byBase := range doc {
		t.register(instrument, byBase)
	}
	log.Debug().Int("instruments", len(t.byInstrument)).Msg("grouped-tests catalog loaded")
	return t, nil
}

// NewTestsFromMap builds the catalog from an in-memory instrument → base →
// code mapping.
func NewTestsFromMap(doc map[string]map[string]int) *Tests {
	t := &Tests{byInstrument: map[string]map[string]int{}}
	for instrument, byBase := range doc {
		t.register(instrument, byBase)
	}
	return t
}

func (t *Tests) register(instrument string, byBase map[string]int) {
	name := strings.ToUpper(strings.TrimSpace(instrument))
	if t.byInstrument[name] == nil {
		t.byInstrument[name] = map[string]int{}
	}
	for base, code := range byBase {
		full := strings.ToLower(strings.TrimSpace(base))
		file := strings.ToLower(filepath.Base(full))
		t.byInstrument[name][full] = code
		t.byInstrument[name][file] = code
		t.byInstrument[name][strings.TrimSuffix(file, ".gdb")] = code
	}
}

// Code returns the numeric test code for an instrument at a source, trying
// each source key in order.
func (t *Tests) Code(sourceKeys []string, instrument string) (int, bool) {
	byBase, ok := t.byInstrument[strings.ToUpper(strings.TrimSpace(instrument))]
	if !ok {
		return 0, false
	}
	for _, key := range sourceKeys {
		if code, ok := byBase[strings.ToLower(strings.TrimSpace(key))]; ok {
			return code, true
		}
	}
	return 0, false
}

// Known reports whether any source defines a code for instrument.
func (t *Tests) Known(instrument string) bool {
	_, ok := t.byInstrument[strings.ToUpper(strings.TrimSpace(instrument))]
	return ok
}
