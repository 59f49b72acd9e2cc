package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// MedCategory identifies one medication group relevant to indicator
// templates.
type MedCategory string

const (
	MedEPO               MedCategory = "EPO"
	MedVitaminD          MedCategory = "VITAMINA_D"
	MedCalcimimetics     MedCategory = "CALCIMIMETICOS"
	MedCalciumBinders    MedCategory = "CAPTORES_CALCICOS"
	MedNonCalciumBinders MedCategory = "CAPTORES_NO_CALCICOS"
	MedIVIron            MedCategory = "HIERRO_IV"
	MedOralIron          MedCategory = "HIERRO_ORAL"
)

// MedCategories lists every category in template-token order.
var MedCategories = []MedCategory{
	MedEPO,
	MedVitaminD,
	MedCalcimimetics,
	MedCalciumBinders,
	MedNonCalciumBinders,
	MedIVIron,
	MedOralIron,
}

// medRule holds the keyword sets matched against a group description and a
// commercial (registered) name. Matching is case-insensitive substring.
type medRule struct {
	desc []string
	pres []string
}

var medRules = map[MedCategory]medRule{
	MedEPO: {
		desc: []string{"EPO", "ERITROPOYETINA"},
		pres: []string{"EPO", "ERITROPOYETINA", "ARANESP", "MIRCERA", "BINOCRIT", "EPREX", "NESP"},
	},
	MedVitaminD: {
		desc: []string{"CALCITRIOL", "PARICALCITOL"},
		pres: []string{"CALCITRIOL", "PARICALCITOL", "ZEMPLAR", "ROCALTROL", "ETALPHA"},
	},
	MedCalcimimetics: {
		desc: []string{"CALCIMIM", "CINACALCET", "PARSA"},
		pres: []string{"MIMPARA", "CINACALCET", "PARSABIV", "ETELCALCETIDA", "PARSA"},
	},
	MedCalciumBinders: {
		desc: []string{"CALCICO", "CÁLCICO", "APORTES CA", "QUELANTES DEL FOSFORO CALCICOS", "QUELANTES CÁLCICOS"},
		pres: []string{"CARBONATO CALCICO", "ACETATO CALCICO", "CALCIO", "CAOSINA", "ROYEN", "MASTICAL", "OSVAREN", "NATECAL", "CITRATO CALCICO"},
	},
	MedNonCalciumBinders: {
		desc: []string{"NO CALCICO", "NO CÁLCICO", "ALUMINICO", "LANTANO", "SEVELAME", "QUELANTES NO CALCICOS"},
		pres: []string{"RENAGEL", "RENVELA", "FOSRENOL", "VELPHORO", "SEVELAMER", "LANTANO", "ALMAX", "PEPSAMAR", "ALUMINIO"},
	},
	MedIVIron: {
		desc: []string{"HIERRO IV", "HIERRO INTRAVENOSO", "HIERRO PARENTERAL"},
		pres: []string{"VENOFER", "FERINJECT", "HIERRO SACAROSA", "CARBOXIMALTOSA", "COSMOFER", "FERIV"},
	},
	MedOralIron: {
		desc: []string{"HIERRO ORAL", "FERROTERAPIA ORAL"},
		pres: []string{"TARDYFERON", "FERROGRADUMET", "FERO-GRADUMET", "SULFATO FERROSO", "GLUCONATO FERROSO", "FISIOGEN FERRO", "FERBISOL"},
	},
}

// nonCalciumMarkers never match the calcium-based category even when a
// calcium keyword is present ("QUELANTES NO CALCICOS" contains "CALCICOS").
var nonCalciumMarkers = []string{"NO CALCICO", "NO CÁLCICO"}

// binderGroupMarkers flag generic phosphate-binder group descriptions that
// carry no calcium/non-calcium qualifier; those are re-checked against
// commercial names alone.
var binderGroupMarkers = []string{"QUELANTE", "FOSFORO", "FSFORO", "CAPTOR"}

// ClassifyMedication reports every category a medication row belongs to,
// given its group description and registered commercial name.
func ClassifyMedication(description, commercialName string) []MedCategory {
	desc := strings.ToUpper(description)
	pres := strings.ToUpper(commercialName)

	matched := make(map[MedCategory]bool, len(medRules))
	for _, cat := range []MedCategory{MedEPO, MedVitaminD, MedCalcimimetics, MedIVIron, MedOralIron} {
		if ruleMatches(medRules[cat], desc, pres) {
			matched[cat] = true
		}
	}

	if !containsAny(desc, nonCalciumMarkers) && ruleMatches(medRules[MedCalciumBinders], desc, pres) {
		matched[MedCalciumBinders] = true
	}
	if ruleMatches(medRules[MedNonCalciumBinders], desc, pres) {
		matched[MedNonCalciumBinders] = true
	}
	// generic binder groups: fall back to commercial-name keywords only
	if containsAny(desc, binderGroupMarkers) && !matched[MedCalciumBinders] && !matched[MedNonCalciumBinders] {
		if containsAny(pres, medRules[MedCalciumBinders].pres) {
			matched[MedCalciumBinders] = true
		}
		if containsAny(pres, medRules[MedNonCalciumBinders].pres) {
			matched[MedNonCalciumBinders] = true
		}
	}

	out := make([]MedCategory, 0, len(matched))
	for _, cat := range MedCategories {
		if matched[cat] {
			out = append(out, cat)
		}
	}
	return out
}

func ruleMatches(r medRule, desc, pres string) bool {
	return containsAny(desc, r.desc) || containsAny(pres, r.pres)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// medRow mirrors one row of a per-center medication dump.
type medRow struct {
	CodGrupo      json.Number `json:"CODGRUPO"`
	DescGrupo     string      `json:"DESCGRUPO"`
	Descripcion   string      `json:"DESCRIPCION"`
	NomRegistrado string      `json:"NOM_REGISTRADO"`
}

type medDocument struct {
	Results []struct {
		Rows []medRow `json:"rows"`
	} `json:"results"`
	Rows []medRow `json:"rows"`
}

// Meds holds the classified medication group codes per source.
type Meds struct {
	bySource map[string]map[MedCategory][]string
}

var medFilePattern = regexp.MustCompile(`(?i)^DB\d+\.json$`)

// LoadMeds scans dir for per-center medication dumps (DB1.json, DB10.json,
// ...) and classifies each into the category code lists. A missing dir
// yields an empty catalog, not an error; templates then get the sentinel.
func LoadMeds(dir string, log zerolog.Logger) (*Meds, error) {
	m := &Meds{bySource: map[string]map[MedCategory][]string{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", dir).Msg("medication catalog directory missing")
			return m, nil
		}
		return nil, fmt.Errorf("reading medication catalog dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !medFilePattern.MatchString(entry.Name()) {
			continue
		}
		rows, err := readMedRows(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("skipping unreadable medication dump")
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(entry.Name(), ".json"))
		m.bySource[key] = classifyRows(rows)
		log.Debug().Str("source", key).Int("rows", len(rows)).Msg("medication catalog loaded")
	}
	return m, nil
}

// NewMedsFromRows builds the catalog directly from in-memory rows, keyed by
// source identifier. Used by tests and the catalogs CLI.
func NewMedsFromRows(rowsBySource map[string][]MedRow) *Meds {
	m := &Meds{bySource: map[string]map[MedCategory][]string{}}
	for key, rows := range rowsBySource {
		raw := make([]medRow, len(rows))
		for i, r := range rows {
			raw[i] = medRow{
				CodGrupo:      json.Number(r.GroupCode),
				DescGrupo:     r.Description,
				NomRegistrado: r.CommercialName,
			}
		}
		m.bySource[strings.ToLower(key)] = classifyRows(raw)
	}
	return m
}

// MedRow is the public row shape for building catalogs without a file.
type MedRow struct {
	GroupCode      string
	Description    string
	CommercialName string
}

func readMedRows(path string) ([]medRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = stripBOM(raw)

	var doc medDocument
	if err := json.Unmarshal(raw, &doc); err == nil {
		if len(doc.Results) > 0 && len(doc.Results[0].Rows) > 0 {
			return doc.Results[0].Rows, nil
		}
		if len(doc.Rows) > 0 {
			return doc.Rows, nil
		}
	}
	var list []medRow
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("unrecognized medication dump shape: %w", err)
	}
	return list, nil
}

func classifyRows(rows []medRow) map[MedCategory][]string {
	seen := map[MedCategory]map[string]bool{}
	for _, row := range rows {
		code := row.CodGrupo.String()
		if code == "" {
			continue
		}
		desc := row.DescGrupo
		if desc == "" {
			desc = row.Descripcion
		}
		for _, cat := range ClassifyMedication(desc, row.NomRegistrado) {
			if seen[cat] == nil {
				seen[cat] = map[string]bool{}
			}
			seen[cat][code] = true
		}
	}

	out := make(map[MedCategory][]string, len(seen))
	for cat, codes := range seen {
		list := make([]string, 0, len(codes))
		for c := range codes {
			list = append(list, c)
		}
		sort.Strings(list)
		out[cat] = list
	}
	return out
}

// CodesFor returns the group codes for a source/category pair. The empty
// slice signals a catalog miss; callers substitute the sentinel.
func (m *Meds) CodesFor(sourceKeys []string, cat MedCategory) []string {
	for _, key := range sourceKeys {
		if byCat, ok := m.bySource[strings.ToLower(key)]; ok {
			return byCat[cat]
		}
	}
	return nil
}

func stripBOM(raw []byte) []byte {
	return bytes.TrimSpace(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
}
