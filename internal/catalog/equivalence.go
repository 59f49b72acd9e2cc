package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// defaultEquivalences maps every lab-parameter alias observed across the
// centers to its canonical name. One hop only: no entry's value may itself
// appear as a key mapping somewhere else.
var defaultEquivalences = map[string]string{
	"HDLCOLES": "HDL",
	"LDLCOLES": "LDL",
	"CREA-QUI": "CREATINI",
	"VIT12":    "VB12",
	"B12":      "VB12",
	"VIT B12":  "VB12",
	"Vit.B 12": "VB12",
	"Vit.B12":  "VB12",
	"TRIG":     "TRIGLICE",
	"GGT":      "GAMMAGT",
	"ALB":      "ALBUMINA",
	"PLAQ":     "PLAQUETA",
	"BASO":     "BASOF",
	"EOS":      "EOSINOF",
	"MONO":     "MONOCIT",
	"LINFO":    "LINFOS",
	"SEG":      "NEUTROF",
	"SEG_ABS":  "NEUTROF",
	"HGB":      "HEMOG",
	"HTO":      "HEMAT",
	"Na":       "SODIO",
	"NA":       "SODIO",
	"K":        "POTASIO",
	"K +":      "POTASIO",
	"Cl":       "CLORO",
	"GLU":      "GLUCOSA",
	"ALP":      "FOSFATAS",
	"P":        "FOSFORO",
	"PTH-i":    "PTH-I",
	"BIC":      "CO2",
	"BIC INIC": "CO2",
	"HCO3":     "BICARBON",
	"COL-HDL":  "HDL",
	"COL-LDL":  "LDL",
	"LDL-C":    "LDL",
	"CHOL":     "COLESTER",
	"A.FOLICO": "AFOLICO",
	"A.FÓLICO": "AFOLICO",
	"A.Folico": "AFOLICO",
	"A.Fólico": "AFOLICO",
	"AcFol":    "AFOLICO",
	"ACFOL":    "AFOLICO",
	"AC FOLIC": "AFOLICO",
	"FOLICO":   "AFOLICO",
	"Folico":   "AFOLICO",
	"CO2 Tota": "CO2",
	"BILRTOT":  "BILIRRUB",
	"25-OH VD": "VD25",
	"25OHD":    "VD25",
	"25OHD3":   "VD25",
	"Vit D3":   "VD25",
	"VITAD25":  "VD25",
	"Vit. D":   "VD25",
	"VITAM.D":  "VD25",
	"vit D":    "VD25",
	"vitD":     "VD25",
	"PROT C R": "PCR",
	"Ca":       "CALCIO",
}

// Equivalences resolves source-specific lab-parameter aliases to canonical
// names. The table is fixed at construction; Resolve is a pure function.
type Equivalences struct {
	aliases map[string]string
	folded  map[string]string
}

// NewEquivalences builds a resolver over the shipped alias table. Alias
// chains (an alias whose canonical form is itself an alias) are logged and
// left as-is: resolution is always exactly one lookup.
func NewEquivalences(log zerolog.Logger) *Equivalences {
	return newEquivalences(defaultEquivalences, log)
}

// NewEquivalencesFromFile layers a JSON alias document over the shipped
// table. The file holds a flat {"alias": "canonical"} object.
func NewEquivalencesFromFile(path string, log zerolog.Logger) (*Equivalences, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading equivalence table: %w", err)
	}
	var extra map[string]string
	if err := json.Unmarshal(stripBOM(raw), &extra); err != nil {
		return nil, fmt.Errorf("parsing equivalence table %s: %w", path, err)
	}
	merged := make(map[string]string, len(defaultEquivalences)+len(extra))
	for k, v := range defaultEquivalences {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return newEquivalences(merged, log), nil
}

func newEquivalences(table map[string]string, log zerolog.Logger) *Equivalences {
	e := &Equivalences{
		aliases: make(map[string]string, len(table)),
		folded:  make(map[string]string, len(table)),
	}
	for alias, canonical := range table {
		e.aliases[alias] = canonical
		e.folded[foldCode(alias)] = canonical
		if next, chained := table[canonical]; chained && next != canonical {
			log.Warn().
				Str("alias", alias).
				Str("canonical", canonical).
				Str("chains_to", next).
				Msg("equivalence table contains an alias chain; resolution stays single-hop")
		}
	}
	return e
}

// Resolve maps an alias to its canonical code. Unknown codes pass through
// unchanged. Exact match wins over the case/punctuation-folded match.
func (e *Equivalences) Resolve(raw string) string {
	if canonical, ok := e.aliases[raw]; ok {
		return canonical
	}
	if canonical, ok := e.folded[foldCode(raw)]; ok {
		return canonical
	}
	return raw
}

// Len reports the number of known aliases.
func (e *Equivalences) Len() int { return len(e.aliases) }

// Aliases returns a copy of the alias table, for catalog inspection.
func (e *Equivalences) Aliases() map[string]string {
	out := make(map[string]string, len(e.aliases))
	for k, v := range e.aliases {
		out[k] = v
	}
	return out
}

// foldCode normalizes casing and punctuation variants: "Vit.B 12",
// "VIT B12" and "vit b-12" all fold to the same key.
func foldCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		switch r {
		case ' ', '.', '-', '_', '+':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
