package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

// Executor is the slice of the federated executor the collector needs.
type Executor interface {
	Execute(ctx context.Context, sources []source.Descriptor, queries []string) []source.Outcome
}

// Assessment is one patient's latest instrument assessment in the period,
// with the derived risk classification. Class is nil when the center
// recorded no usable sum; the record still carries whatever items exist.
type Assessment struct {
	PatientID string             `json:"patient_id"`
	Source    string             `json:"source"`
	Date      string             `json:"date,omitempty"`
	Sum       *float64           `json:"sum,omitempty"`
	Items     map[string]float64 `json:"items,omitempty"`
	Class     *Classification    `json:"classification,omitempty"`

	// PHQ4 sub-scores
	AnxietySum    *float64        `json:"anxiety_sum,omitempty"`
	Anxiety       *Classification `json:"anxiety,omitempty"`
	DepressionSum *float64        `json:"depression_sum,omitempty"`
	Depression    *Classification `json:"depression,omitempty"`
}

// Collector pulls the latest assessment per patient from each center and
// classifies it.
type Collector struct {
	tests *catalog.Tests
	exec  Executor
	log   zerolog.Logger
}

func NewCollector(tests *catalog.Tests, exec Executor, log zerolog.Logger) *Collector {
	return &Collector{tests: tests, exec: exec, log: log}
}

// Collect runs the latest-assessment query for one instrument against
// every source that defines a test code for it. Sources without a code are
// skipped with a warning, as are sources that fail; both are per-center
// conditions, never fatal.
func (c *Collector) Collect(ctx context.Context, in Instrument, patientIDs []string, sources []source.Descriptor, iv query.Interval) []Assessment {
	if len(patientIDs) == 0 {
		return nil
	}
	placeholders := quoteList(patientIDs)

	var selected []source.Descriptor
	var queries []string
	for _, d := range sources {
		code, ok := c.tests.Code(d.CatalogKeys(), string(in))
		if !ok {
			c.log.Warn().
				Str("instrument", string(in)).
				Str("source", d.DisplayName()).
				Msg("no test code for instrument at source, skipping")
			continue
		}
		selected = append(selected, d)
		queries = append(queries, assessmentQuery(code, placeholders, iv))
	}
	if len(selected) == 0 {
		return nil
	}

	var out []Assessment
	for _, o := range c.exec.Execute(ctx, selected, queries) {
		if o.Err != nil {
			c.log.Error().Err(o.Err).
				Str("instrument", string(in)).
				Str("source", o.Source.DisplayName()).
				Msg("assessment query failed, skipping source")
			continue
		}
		out = append(out, c.fold(in, o)...)
	}
	return out
}

// assessmentQuery selects each patient's most recent assessment in the
// period together with every answer row.
func assessmentQuery(testCode int, placeholders string, iv query.Interval) string {
	return fmt.Sprintf(`
		SELECT
			t.NREGGEN,
			t.FECHA,
			t.PUNTOS_TOT,
			t.CODTEST,
			r.CODRESPUESTA,
			r.PUNTOS,
			resp.ORDEN
		FROM TEST_PAC t
		JOIN (
			SELECT NREGGEN, MAX(FECHA) AS FECHA_MAXIMA
			FROM TEST_PAC
			WHERE CODTEST = %d
				AND NREGGEN IN (%s)
				AND FECHA BETWEEN '%s' AND '%s'
			GROUP BY NREGGEN
		) max_fechas
			ON t.NREGGEN = max_fechas.NREGGEN
			AND t.FECHA = max_fechas.FECHA_MAXIMA
		LEFT JOIN RESPUESTA_PAC r ON r.IDTEST = t.IDTEST
		LEFT JOIN RESPUESTA resp ON resp.CODRESPUESTA = r.CODRESPUESTA
		WHERE t.CODTEST = %d
			AND t.NREGGEN IN (%s)
		ORDER BY t.NREGGEN, t.FECHA`,
		testCode, placeholders, iv.StartISO(), iv.EndISO(), testCode, placeholders)
}

// fold groups answer rows per patient, applies the center's order-scale
// override and classifies the result. Item keys always carry the reference
// instrument code, never the center's local test code.
func (c *Collector) fold(in Instrument, o source.Outcome) []Assessment {
	scale := OrderScale(o.Source.CatalogKeys(), in.Code())

	byPatient := map[string]*Assessment{}
	var order []string
	for _, row := range o.Rows {
		pid := text(row.Values["NREGGEN"])
		if pid == "" {
			continue
		}
		a, ok := byPatient[pid]
		if !ok {
			a = &Assessment{
				PatientID: pid,
				Source:    o.Source.DisplayName(),
				Date:      reportDate(row.Values["FECHA"]),
				Sum:       numeric(row.Values["PUNTOS_TOT"]),
				Items:     map[string]float64{},
			}
			byPatient[pid] = a
			order = append(order, pid)
		}

		orden := numeric(row.Values["ORDEN"])
		puntos := numeric(row.Values["PUNTOS"])
		if orden == nil || puntos == nil {
			continue
		}
		key := fmt.Sprintf("%d_%s", in.Code(), strconv.FormatFloat(scale(*orden), 'f', -1, 64))
		a.Items[key] = *puntos
	}

	out := make([]Assessment, 0, len(order))
	for _, pid := range order {
		a := byPatient[pid]
		classify(in, a)
		out = append(out, *a)
	}
	return out
}

func classify(in Instrument, a *Assessment) {
	if in == PHQ4 {
		if sum, c, ok := ClassifySubScore(item(a, phq4Anxiety1), item(a, phq4Anxiety2)); ok {
			a.AnxietySum = &sum
			cc := c
			a.Anxiety = &cc
		}
		if sum, c, ok := ClassifySubScore(item(a, phq4Depression1), item(a, phq4Depression2)); ok {
			a.DepressionSum = &sum
			cc := c
			a.Depression = &cc
		}
		return
	}
	if a.Sum == nil {
		return
	}
	if c, ok := Classify(in, *a.Sum); ok {
		a.Class = &c
	}
}

func item(a *Assessment, key string) *float64 {
	if v, ok := a.Items[key]; ok {
		return &v
	}
	return nil
}

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + strings.ReplaceAll(id, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

func numeric(raw any) *float64 {
	var f float64
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func text(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(raw)
}

// reportDate renders an assessment date as DD-MM-YYYY, the format the
// reports use.
func reportDate(raw any) string {
	switch v := raw.(type) {
	case time.Time:
		return v.Format("02-01-2006")
	case string:
		s := strings.TrimSpace(v)
		if len(s) >= 10 {
			if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return t.Format("02-01-2006")
			}
		}
		return s
	}
	return ""
}
