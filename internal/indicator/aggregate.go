package indicator

import (
	"math"
	"strings"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
)

// Percentage detection is a data-driven rule table: explicit unit markers
// plus label keywords. Everything else aggregates as a count.
var (
	percentUnits         = []string{"%", "PCT"}
	percentLabelKeywords = []string{"porcentaje", "tasa", "%"}
)

// IsPercentage classifies an indicator for aggregation purposes.
func IsPercentage(def catalog.Indicator) bool {
	for _, u := range percentUnits {
		if def.Unit == u {
			return true
		}
	}
	label := strings.ToLower(def.Label)
	for _, k := range percentLabelKeywords {
		if strings.Contains(label, k) {
			return true
		}
	}
	return false
}

// Aggregate combines per-center results into the population-level value.
//
// Counts sum directly. Percentages use the population-weighted mean:
// summing raw percentages across centers of different sizes misstates the
// true population rate, so each center's value is weighted by its patient
// count. Weighted results round to two decimals; an all-zero population
// yields 0, never NaN.
func Aggregate(perSource []SourceResult, def catalog.Indicator) (totalValue, totalPopulation float64) {
	if len(perSource) == 0 {
		return 0, 0
	}

	percentage := IsPercentage(def)
	var weighted, plain float64
	for _, r := range perSource {
		totalPopulation += r.Population
		if percentage {
			weighted += r.Value * r.Population
		} else {
			plain += r.Value
		}
	}

	if !percentage {
		return plain, totalPopulation
	}
	if totalPopulation == 0 {
		return 0, 0
	}
	return math.Round(weighted/totalPopulation*100) / 100, totalPopulation
}
