// Package source holds the per-center database descriptors and the
// sequential federated executor that runs one parameterized query against
// each center with per-source failure isolation.
package source

import (
	"fmt"
	"path"
	"strings"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/config"
)

// Descriptor identifies one clinical database instance. Owned by
// configuration; nothing downstream mutates it.
type Descriptor struct {
	Code     string
	Name     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DisplayName is the center label used in reports: the configured name, or
// the database basename with the NF6_ prefix and .gdb extension stripped.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	base := path.Base(strings.ReplaceAll(d.Database, "\\", "/"))
	base = strings.TrimPrefix(base, "NF6_")
	base = strings.TrimSuffix(base, ".gdb")
	if base == "" || base == "." {
		return d.Code
	}
	return base
}

// CatalogKeys lists the keys this source may be registered under in the
// code catalogs.
func (d Descriptor) CatalogKeys() []string {
	return catalog.SourceKeys(d.Code, d.Database)
}

// Registry is the ordered source catalog for a process, built once from
// configuration.
type Registry struct {
	ordered []Descriptor
	byCode  map[string]Descriptor
}

// NewRegistry maps the configured source slots to descriptors, keeping
// slot order.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{byCode: map[string]Descriptor{}}
	for _, slot := range cfg.Sources {
		d := Descriptor{
			Code:     slot.Code,
			Name:     slot.Name,
			Host:     cfg.SourceHost,
			Port:     cfg.SourcePort,
			Database: slot.Database,
			User:     cfg.SourceUser,
			Password: cfg.SourcePassword,
		}
		r.ordered = append(r.ordered, d)
		r.byCode[strings.ToUpper(slot.Code)] = d
	}
	return r
}

// All returns every source in slot order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Select resolves the requested source codes, preserving request order.
func (r *Registry) Select(codes []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(codes))
	for _, code := range codes {
		d, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", code)
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Registry) Len() int { return len(r.ordered) }
