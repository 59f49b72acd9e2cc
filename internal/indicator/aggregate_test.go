package indicator

import (
	"testing"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
)

func TestIsPercentage(t *testing.T) {
	tests := []struct {
		def  catalog.Indicator
		want bool
	}{
		{catalog.Indicator{Unit: "%"}, true},
		{catalog.Indicator{Unit: "PCT"}, true},
		{catalog.Indicator{Label: "Porcentaje de pacientes con Hb > 10"}, true},
		{catalog.Indicator{Label: "Tasa de bacteriemia"}, true},
		{catalog.Indicator{Label: "Pacientes con Kt/V > 1.3 (%)"}, true},
		{catalog.Indicator{Label: "Numero de infecciones"}, false},
		{catalog.Indicator{Unit: "sesiones"}, false},
		{catalog.Indicator{}, false},
	}
	for _, tt := range tests {
		if got := IsPercentage(tt.def); got != tt.want {
			t.Errorf("IsPercentage(%+v) = %v, want %v", tt.def, got, tt.want)
		}
	}
}

func TestAggregate_WeightedMean(t *testing.T) {
	def := catalog.Indicator{Unit: "%"}
	perSource := []SourceResult{
		{Source: "Getafe", Value: 70, Population: 100},
		{Source: "HRJC", Value: 50, Population: 50},
	}

	value, population := Aggregate(perSource, def)
	if value != 63.33 {
		t.Errorf("total value = %v, want 63.33", value)
	}
	if population != 150 {
		t.Errorf("total population = %v, want 150", population)
	}

	// weighted mean stays inside [min, max] when all populations are positive
	if value < 50 || value > 70 {
		t.Errorf("weighted mean %v outside [50, 70]", value)
	}
}

func TestAggregate_CountAdditivity(t *testing.T) {
	def := catalog.Indicator{Label: "Numero de infecciones de cateter"}
	perSource := []SourceResult{
		{Value: 5, Population: 40},
		{Value: 3, Population: 0},
		{Value: 0, Population: 12},
	}

	value, population := Aggregate(perSource, def)
	if value != 8 {
		t.Errorf("total value = %v, want 8", value)
	}
	if population != 52 {
		t.Errorf("total population = %v, want 52", population)
	}
}

func TestAggregate_ZeroPopulation(t *testing.T) {
	def := catalog.Indicator{Unit: "%"}
	perSource := []SourceResult{
		{Value: 70, Population: 0},
		{Value: 50, Population: 0},
	}

	value, population := Aggregate(perSource, def)
	if value != 0 || population != 0 {
		t.Errorf("got (%v, %v), want (0, 0) for all-zero populations", value, population)
	}
}

func TestAggregate_FailedSourceContributesNothing(t *testing.T) {
	def := catalog.Indicator{Unit: "%"}
	perSource := []SourceResult{
		{Source: "A", Value: 60, Population: 100},
		{Source: "B", Err: "network unreachable"},
		{Source: "C", Value: 80, Population: 100},
	}

	value, population := Aggregate(perSource, def)
	if value != 70 {
		t.Errorf("total value = %v, want 70", value)
	}
	if population != 200 {
		t.Errorf("total population = %v, want 200", population)
	}
}

func TestAggregate_Empty(t *testing.T) {
	if v, p := Aggregate(nil, catalog.Indicator{}); v != 0 || p != 0 {
		t.Errorf("got (%v, %v), want (0, 0)", v, p)
	}
}
