// Package instrument classifies composite clinical instrument scores
// (Barthel, Downton, Frail, ...) into ordinal risk categories and collects
// the latest assessment per patient from the center databases.
package instrument

import "strings"

// Instrument is one standardized clinical questionnaire.
type Instrument string

const (
	Charlson Instrument = "CHARLSON"
	Downton  Instrument = "DOWNTON"
	SarcF    Instrument = "SARCF"
	Frail    Instrument = "FRAIL"
	MNA      Instrument = "MNA"
	PHQ4     Instrument = "PHQ4"
	Lawton   Instrument = "LAWTON"
	Barthel  Instrument = "BARTHEL"
	Gijon    Instrument = "GIJON"
)

// meta carries the reference test code and the report field names each
// instrument folds into.
type meta struct {
	Code    int
	SumKey  string
	DateKey string
}

var instruments = map[Instrument]meta{
	Charlson: {Code: 1, SumKey: "SUMA_CHARS", DateKey: "FECHA_CHARS"},
	Downton:  {Code: 104, SumKey: "SUMA_DOWNT", DateKey: "FECHA_DOWNT"},
	SarcF:    {Code: 120, SumKey: "SUMA_SARCF", DateKey: "FECHA_SARCF"},
	Frail:    {Code: 116, SumKey: "SUMA_FRAIL", DateKey: "FECHA_FRAIL"},
	MNA:      {Code: 121, SumKey: "SUMA_MNA", DateKey: "FECHA_MNA"},
	PHQ4:     {Code: 150, SumKey: "SUMA_PHQ4", DateKey: "FECHA_PHQ4"},
	Lawton:   {Code: 137, SumKey: "SUMA_LAWT", DateKey: "FECHA_LAWT"},
	Barthel:  {Code: 4, SumKey: "SUMA_BARTHEL", DateKey: "FECHA_BARTHEL"},
	Gijon:    {Code: 149, SumKey: "SUMA_GIJON", DateKey: "FECHA_GIJON"},
}

// Parse resolves an instrument name, case-insensitive.
func Parse(name string) (Instrument, bool) {
	in := Instrument(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := instruments[in]
	return in, ok
}

// Code is the reference numeric test code for the instrument.
func (in Instrument) Code() int { return instruments[in].Code }

// All lists the supported instruments.
func All() []Instrument {
	return []Instrument{Charlson, Downton, SarcF, Frail, MNA, PHQ4, Lawton, Barthel, Gijon}
}
