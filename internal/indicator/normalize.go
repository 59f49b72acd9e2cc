package indicator

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

// Column candidates for the two canonical fields, checked in order,
// case-insensitive. The centers never agreed on a select-list shape.
var (
	valueColumns      = []string{"RESULTADO", "TOTAL_SESIONES", "COUNT"}
	populationColumns = []string{"NUMERO_PACIENTES", "PACIENTES", "NREGGEN"}
)

// Normalize folds a raw result set into the canonical {value, population}
// pair. One row takes its literal value (percentage indicators must never
// be summed); multiple rows sum both fields, which is only sound for
// additive indicators. Missing population defaults to zero, not to the
// value: some indicators legitimately report zero eligible patients.
func Normalize(rows []source.Row) (value, population float64) {
	for _, row := range rows {
		v, _ := pickColumn(row, valueColumns, true)
		p, ok := pickColumn(row, populationColumns, false)
		if !ok {
			p = 0
		}
		value += v
		population += p
	}
	return value, population
}

// pickColumn finds the first candidate column present in the row. With
// firstFallback the row's first select-list column is used when no
// candidate matches.
func pickColumn(row source.Row, candidates []string, firstFallback bool) (float64, bool) {
	for _, want := range candidates {
		for col, raw := range row.Values {
			if strings.EqualFold(col, want) {
				return toFloat(raw), true
			}
		}
	}
	if firstFallback && len(row.Columns) > 0 {
		return toFloat(row.Values[row.Columns[0]]), true
	}
	return 0, false
}

func toFloat(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return 0
}
