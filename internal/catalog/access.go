package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// AccessCategory identifies one vascular-access subtype.
type AccessCategory string

const (
	AccessCatheter          AccessCategory = "CATETER"
	AccessTunnelledCatheter AccessCategory = "CATETER_TUNELIZADO"
	AccessAutologousFistula AccessCategory = "FAV_AUTOLOGA"
	AccessProstheticGraft   AccessCategory = "PROTESIS"
	AccessFistulaOrGraft    AccessCategory = "FAV_PROTESIS"
)

// AccessEntry is one vascular-access type as a center defines it.
// EsCateter encodes the subtype: -1 catheter, 2 autologous fistula,
// 3 prosthetic graft.
type AccessEntry struct {
	Codigo     json.Number `json:"CODIGO"`
	TipoAcceso string      `json:"TIPOACCESO"`
	EsCateter  int         `json:"ES_CATETER"`
}

type accessDocument struct {
	Data []struct {
		BaseData string        `json:"baseData"`
		Items    []AccessEntry `json:"items"`
		Accesos  []AccessEntry `json:"accesos"`
	} `json:"data"`
}

// Accesses maps source keys to that center's vascular-access entries.
// Each center is registered under its full database path, its basename and
// its basename without the .gdb extension, all lowercased.
type Accesses struct {
	bySource map[string][]AccessEntry
}

// LoadAccesses reads the vascular-access catalog document. A missing file
// yields an empty catalog; templates then get the sentinel.
func LoadAccesses(path string, log zerolog.Logger) (*Accesses, error) {
	a := &Accesses{bySource: map[string][]AccessEntry{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", path).Msg("vascular-access catalog missing")
			return a, nil
		}
		return nil, fmt.Errorf("reading vascular-access catalog: %w", err)
	}

	var doc accessDocument
	if err := json.Unmarshal(stripBOM(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing vascular-access catalog %s: %w", path, err)
	}

	for _, entry := range doc.Data {
		if entry.BaseData == "" {
			continue
		}
		items := entry.Items
		if len(items) == 0 {
			items = entry.Accesos
		}
		a.register(entry.BaseData, items)
	}
	log.Debug().Int("sources", len(a.bySource)).Msg("vascular-access catalog loaded")
	return a, nil
}

// NewAccessesFromEntries builds the catalog from in-memory entries keyed by
// database path.
func NewAccessesFromEntries(byBase map[string][]AccessEntry) *Accesses {
	a := &Accesses{bySource: map[string][]AccessEntry{}}
	for base, items := range byBase {
		a.register(base, items)
	}
	return a
}

func (a *Accesses) register(baseData string, items []AccessEntry) {
	full := strings.ToLower(strings.TrimSpace(baseData))
	file := strings.ToLower(strings.TrimSpace(filepath.Base(full)))
	fileNoExt := strings.TrimSuffix(file, ".gdb")

	a.bySource[full] = items
	a.bySource[file] = items
	a.bySource[fileNoExt] = items
}

// CodesFor returns the access-type codes matching category for the first
// source key present in the catalog. Empty result means catalog miss.
func (a *Accesses) CodesFor(sourceKeys []string, cat AccessCategory) []string {
	var entries []AccessEntry
	found := false
	for _, key := range sourceKeys {
		if e, ok := a.bySource[strings.ToLower(strings.TrimSpace(key))]; ok {
			entries = e
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var codes []string
	for _, e := range entries {
		if e.Codigo.String() == "" {
			continue
		}
		if matchesAccessCategory(e, cat) {
			codes = append(codes, e.Codigo.String())
		}
	}
	return codes
}

func matchesAccessCategory(e AccessEntry, cat AccessCategory) bool {
	switch cat {
	case AccessCatheter:
		return e.EsCateter == -1
	case AccessTunnelledCatheter:
		return strings.Contains(e.TipoAcceso, "CATETER") && strings.Contains(e.TipoAcceso, "TUNELIZADO")
	case AccessAutologousFistula:
		return e.EsCateter == 2
	case AccessProstheticGraft:
		return e.EsCateter == 3
	case AccessFistulaOrGraft:
		return e.EsCateter == 2 || e.EsCateter == 3
	}
	return false
}
