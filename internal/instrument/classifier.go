package instrument

import "math"

// Classification is one ordinal risk category.
type Classification struct {
	Ordinal int    `json:"ordinal"`
	Label   string `json:"label"`
}

// band is one threshold interval: the category holds for every sum below
// Upper, or equal to it when Inclusive. Bands are checked in order; the
// last band of every table is open-ended, so classification is total.
type band struct {
	Upper     float64
	Inclusive bool
	Class     Classification
}

var inf = math.Inf(1)

var thresholds = map[Instrument][]band{
	Downton: {
		{Upper: 0, Inclusive: true, Class: Classification{0, "Sin riesgo"}},
		{Upper: 2, Inclusive: true, Class: Classification{1, "Riesgo bajo"}},
		{Upper: 4, Inclusive: true, Class: Classification{2, "Riesgo medio"}},
		{Upper: inf, Class: Classification{3, "Riesgo alto"}},
	},
	SarcF: {
		{Upper: 3, Inclusive: true, Class: Classification{0, "SALUDABLE"}},
		{Upper: inf, Class: Classification{1, "RIESGO SARCOPENIA"}},
	},
	Frail: {
		{Upper: 0, Inclusive: true, Class: Classification{1, "NO FRAGIL"}},
		{Upper: 2, Inclusive: true, Class: Classification{2, "PRE FRAGIL"}},
		{Upper: inf, Class: Classification{3, "FRAGIL"}},
	},
	MNA: {
		{Upper: 7, Inclusive: true, Class: Classification{3, "Desnutrición"}},
		{Upper: 11, Inclusive: true, Class: Classification{2, "Riesgo de desnutrición"}},
		{Upper: inf, Class: Classification{1, "Estado nutricional normal"}},
	},
	Lawton: {
		{Upper: 1, Inclusive: true, Class: Classification{1, "TOTAL DEPENDENCIA"}},
		{Upper: 3, Inclusive: true, Class: Classification{2, "DEPENDENCIA IMPORTANTE"}},
		{Upper: 5, Inclusive: true, Class: Classification{3, "DEPENDENCIA MODERADA"}},
		{Upper: 7, Inclusive: true, Class: Classification{4, "DEPENDENCIA LIGERA"}},
		{Upper: inf, Class: Classification{5, "INDEPENDIENTE"}},
	},
	Barthel: {
		{Upper: 5, Class: Classification{5, "Problema total"}},
		{Upper: 50, Inclusive: true, Class: Classification{4, "Problema grave"}},
		{Upper: 75, Inclusive: true, Class: Classification{3, "Problema moderado"}},
		{Upper: 95, Inclusive: true, Class: Classification{2, "Problema ligero"}},
		{Upper: inf, Class: Classification{1, "No hay problema"}},
	},
	Gijon: {
		{Upper: 0, Inclusive: true, Class: Classification{0, "No valorado"}},
		{Upper: 10, Class: Classification{1, "Normal o riesgo social bajo"}},
		{Upper: 16, Inclusive: true, Class: Classification{2, "Riesgo social intermedio"}},
		{Upper: inf, Class: Classification{3, "Riesgo social elevado (problema social)"}},
	},
}

// Classify maps a raw instrument sum to its risk category. The second
// return is false for instruments without a threshold table (Charlson is
// reported as its raw sum; PHQ4 classifies through its sub-scores).
func Classify(in Instrument, rawSum float64) (Classification, bool) {
	bands, ok := thresholds[in]
	if !ok {
		return Classification{}, false
	}
	for _, b := range bands {
		if rawSum < b.Upper || (b.Inclusive && rawSum == b.Upper) {
			return b.Class, true
		}
	}
	return Classification{}, false
}

// PHQ4 answer-item keys: the anxiety sub-score sums the first two items,
// the depression sub-score the last two.
const (
	phq4Anxiety1    = "150_10"
	phq4Anxiety2    = "150_20"
	phq4Depression1 = "150_30"
	phq4Depression2 = "150_40"
)

// ClassifySubScore reduces a two-item sub-score pair to its yes/no
// category. Both items absent means no data was recorded: no sum and no
// classification, never a defaulted zero.
func ClassifySubScore(a, b *float64) (sum float64, c Classification, ok bool) {
	if a == nil && b == nil {
		return 0, Classification{}, false
	}
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	if sum >= 3 {
		return sum, Classification{1, "Sí"}, true
	}
	return sum, Classification{0, "No"}, true
}
