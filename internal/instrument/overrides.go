package instrument

import (
	"path/filepath"
	"strings"
)

// Two centers store the answer-ordering field on a shifted numeric scale
// and need a compensating transform before the answer key is derived. The
// transform is center-specific data cleanup with no documented rationale;
// it is kept as an enumerable table so further centers are added as rows,
// not as new branches.
type overrideKey struct {
	source   string
	testCode int
}

var scaleOverrides = map[overrideKey]func(float64) float64{
	{"nf6_hrjc", 104}:         func(o float64) float64 { return o / 10 },
	{"nf6_infantaelena", 121}: func(o float64) float64 { return o * 10 },
	{"nf6_infantaelena", 116}: func(o float64) float64 { return o * 10 },
	{"nf6_infantaelena", 120}: func(o float64) float64 { return o * 10 },
}

// OrderScale returns the answer-ordering transform for a source and test
// code. The identity transform applies everywhere no override is listed.
func OrderScale(sourceKeys []string, testCode int) func(float64) float64 {
	for _, key := range sourceKeys {
		base := strings.ToLower(filepath.Base(strings.TrimSpace(key)))
		base = strings.TrimSuffix(base, ".gdb")
		if f, ok := scaleOverrides[overrideKey{base, testCode}]; ok {
			return f
		}
	}
	return func(o float64) float64 { return o }
}
