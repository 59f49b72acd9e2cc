package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Modality identifies one dialysis treatment modality.
type Modality string

const (
	ModalityHD         Modality = "HD"
	ModalityHDOnline   Modality = "HD_OL"
	ModalityHDExtended Modality = "HD_EXTENDIDA"
	ModalityHDHome     Modality = "HD_DOM"
	ModalityPeritoneal Modality = "PERIT"
	ModalityHDICU      Modality = "HD_UCI"
)

// globalTipoHemo is the reference TIPOHEMO encoding shared by all centers
// that do not ship their own modality catalog.
var globalTipoHemo = map[Modality]int{
	ModalityHD:         1,
	ModalityHDOnline:   2,
	ModalityHDExtended: 3,
	ModalityHDHome:     4,
	ModalityPeritoneal: 5,
	ModalityHDICU:      6,
}

// ModalityEntry is one modality code as a center defines it.
type ModalityEntry struct {
	Codigo   json.Number `json:"CODIGO"`
	TipoHemo int         `json:"TIPOHEMO"`
}

type modalityDocument struct {
	Data []struct {
		BaseData string          `json:"baseData"`
		Items    []ModalityEntry `json:"items"`
	} `json:"data"`
}

// Modalities maps source keys to per-center modality codes, with the global
// TIPOHEMO encoding as fallback for unlisted centers.
type Modalities struct {
	bySource map[string][]ModalityEntry
}

// LoadModalities reads the per-center HD-code catalog. Missing file means
// every center falls back to the global TIPOHEMO encoding.
func LoadModalities(path string, log zerolog.Logger) (*Modalities, error) {
	m := &Modalities{bySource: map[string][]ModalityEntry{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("file", path).Msg("modality catalog missing, using global TIPOHEMO codes")
			return m, nil
		}
		return nil, fmt.Errorf("reading modality catalog: %w", err)
	}

	var doc modalityDocument
	if err := json.Unmarshal(stripBOM(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing modality catalog %s: %w", path, err)
	}
	for _, entry := range doc.Data {
		if entry.BaseData == "" {
			continue
		}
		full := strings.ToLower(strings.TrimSpace(entry.BaseData))
		file := strings.ToLower(filepath.Base(full))
		m.bySource[full] = entry.Items
		m.bySource[file] = entry.Items
		m.bySource[strings.TrimSuffix(file, ".gdb")] = entry.Items
	}
	return m, nil
}

// CodesFor returns the treatment codes for a modality. Centers without
// their own catalog entry use the global TIPOHEMO value, so modality
// tokens always resolve.
func (m *Modalities) CodesFor(sourceKeys []string, mod Modality) []string {
	for _, key := range sourceKeys {
		entries, ok := m.bySource[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		var codes []string
		for _, e := range entries {
			if e.TipoHemo == globalTipoHemo[mod] && e.Codigo.String() != "" {
				codes = append(codes, e.Codigo.String())
			}
		}
		if len(codes) > 0 {
			return codes
		}
	}
	if n, ok := globalTipoHemo[mod]; ok {
		return []string{strconv.Itoa(n)}
	}
	return nil
}
