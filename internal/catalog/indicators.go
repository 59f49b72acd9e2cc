package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Indicator is one quality-indicator definition from the indicator catalog.
type Indicator struct {
	IDCode    string `json:"id_code"`
	Categoria string `json:"categoria"`
	Label     string `json:"indicador"`
	Unit      string `json:"unidad"`
	Template  string `json:"template"`
}

// Indicators is the indicator catalog, loaded once and immutable after.
type Indicators struct {
	list []Indicator
	byID map[string]Indicator
}

// LoadIndicators reads the indicator catalog document. Tolerates a UTF-8
// BOM and leading junk before the JSON array, as some exports carry both.
func LoadIndicators(path string, log zerolog.Logger) (*Indicators, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading indicator catalog: %w", err)
	}
	raw = stripBOM(raw)
	if idx := bytes.IndexByte(raw, '['); idx > 0 {
		raw = raw[idx:]
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("indicator catalog %s is empty", path)
	}

	var list []Indicator
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parsing indicator catalog %s: %w", path, err)
	}

	idx := NewIndicators(list)
	log.Info().Int("indicators", idx.Len()).Str("file", path).Msg("indicator catalog loaded")
	return idx, nil
}

// NewIndicators builds the catalog from definitions already in memory.
// Entries without an id_code are dropped; on duplicate id_code the first
// definition wins.
func NewIndicators(list []Indicator) *Indicators {
	idx := &Indicators{byID: map[string]Indicator{}}
	for _, def := range list {
		def.IDCode = strings.TrimSpace(def.IDCode)
		if def.IDCode == "" {
			continue
		}
		if _, dup := idx.byID[def.IDCode]; dup {
			continue
		}
		idx.byID[def.IDCode] = def
		idx.list = append(idx.list, def)
	}
	return idx
}

// Get looks up a definition by id_code.
func (i *Indicators) Get(idCode string) (Indicator, bool) {
	def, ok := i.byID[strings.TrimSpace(idCode)]
	return def, ok
}

// All returns the definitions in catalog order.
func (i *Indicators) All() []Indicator {
	out := make([]Indicator, len(i.list))
	copy(out, i.list)
	return out
}

func (i *Indicators) Len() int { return len(i.list) }
