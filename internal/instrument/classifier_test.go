package instrument

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		in          Instrument
		sum         float64
		wantOrdinal int
		wantLabel   string
	}{
		{Downton, 0, 0, "Sin riesgo"},
		{Downton, 1, 1, "Riesgo bajo"},
		{Downton, 2, 1, "Riesgo bajo"},
		{Downton, 3, 2, "Riesgo medio"},
		{Downton, 4, 2, "Riesgo medio"},
		{Downton, 5, 3, "Riesgo alto"},
		{Downton, 9, 3, "Riesgo alto"},

		{SarcF, 0, 0, "SALUDABLE"},
		{SarcF, 3, 0, "SALUDABLE"},
		{SarcF, 4, 1, "RIESGO SARCOPENIA"},

		{Frail, 0, 1, "NO FRAGIL"},
		{Frail, 1, 2, "PRE FRAGIL"},
		{Frail, 2, 2, "PRE FRAGIL"},
		{Frail, 3, 3, "FRAGIL"},

		{MNA, 7, 3, "Desnutrición"},
		{MNA, 8, 2, "Riesgo de desnutrición"},
		{MNA, 11, 2, "Riesgo de desnutrición"},
		{MNA, 12, 1, "Estado nutricional normal"},

		{Lawton, 0, 1, "TOTAL DEPENDENCIA"},
		{Lawton, 1, 1, "TOTAL DEPENDENCIA"},
		{Lawton, 2, 2, "DEPENDENCIA IMPORTANTE"},
		{Lawton, 5, 3, "DEPENDENCIA MODERADA"},
		{Lawton, 7, 4, "DEPENDENCIA LIGERA"},
		{Lawton, 8, 5, "INDEPENDIENTE"},

		{Barthel, 4, 5, "Problema total"},
		{Barthel, 5, 4, "Problema grave"},
		{Barthel, 50, 4, "Problema grave"},
		{Barthel, 51, 3, "Problema moderado"},
		{Barthel, 75, 3, "Problema moderado"},
		{Barthel, 95, 2, "Problema ligero"},
		{Barthel, 96, 1, "No hay problema"},
		{Barthel, 100, 1, "No hay problema"},

		{Gijon, 0, 0, "No valorado"},
		{Gijon, 9, 1, "Normal o riesgo social bajo"},
		{Gijon, 10, 2, "Riesgo social intermedio"},
		{Gijon, 16, 2, "Riesgo social intermedio"},
		{Gijon, 17, 3, "Riesgo social elevado (problema social)"},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.in, tt.sum)
		if !ok {
			t.Errorf("Classify(%s, %v): no classification", tt.in, tt.sum)
			continue
		}
		if got.Ordinal != tt.wantOrdinal || got.Label != tt.wantLabel {
			t.Errorf("Classify(%s, %v) = (%d, %q), want (%d, %q)",
				tt.in, tt.sum, got.Ordinal, got.Label, tt.wantOrdinal, tt.wantLabel)
		}
	}
}

func TestClassify_Total(t *testing.T) {
	// every sum maps to exactly one category, including out-of-range ones
	for _, in := range []Instrument{Downton, SarcF, Frail, MNA, Lawton, Barthel, Gijon} {
		for _, sum := range []float64{-1, 0, 0.5, 3, 9.5, 50, 1000} {
			if _, ok := Classify(in, sum); !ok {
				t.Errorf("Classify(%s, %v): table is not total", in, sum)
			}
		}
	}
}

func TestClassify_NoTableInstruments(t *testing.T) {
	if _, ok := Classify(Charlson, 4); ok {
		t.Error("Charlson reports its raw sum, expected no classification")
	}
	if _, ok := Classify(PHQ4, 4); ok {
		t.Error("PHQ4 classifies through sub-scores, expected no classification")
	}
}

func fp(v float64) *float64 { return &v }

func TestClassifySubScore(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *float64
		wantSum  float64
		wantOrd  int
		wantText string
		wantOK   bool
	}{
		{"both present above threshold", fp(2), fp(2), 4, 1, "Sí", true},
		{"boundary at three", fp(1), fp(2), 3, 1, "Sí", true},
		{"below threshold", fp(1), fp(1), 2, 0, "No", true},
		{"single item counts", fp(3), nil, 3, 1, "Sí", true},
		{"single item below", nil, fp(2), 2, 0, "No", true},
		{"neither recorded yields nothing", nil, nil, 0, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, c, ok := ClassifySubScore(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if sum != tt.wantSum || c.Ordinal != tt.wantOrd || c.Label != tt.wantText {
				t.Errorf("got (%v, %d, %q), want (%v, %d, %q)",
					sum, c.Ordinal, c.Label, tt.wantSum, tt.wantOrd, tt.wantText)
			}
		})
	}
}
