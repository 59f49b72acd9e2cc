// Package lab collects each patient's laboratory panel from the center
// databases. Parameter codes differ per center, so every result column is
// folded onto the reference nomenclature through the equivalence table
// before it lands on the panel.
package lab

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

// referenceParameters is the panel requested from every center, in the
// reference nomenclature. Alias spellings are added to the request list at
// query time so centers that store the variant name still answer.
var referenceParameters = []string{
	"PROTETOT", "TRANSFER", "UREA", "IST", "CaCoA", "CALCIO", "HEMOG",
	"HEMAT", "BICARBON", "BILIRRUB", "HIERRO", "ALBUMINA", "CLORO",
	"GLUCOSA", "PLAQUETA", "FOSFORO", "FOSFATAS", "GOT", "POTASIO", "GPT",
	"CREATINI", "TRIGLICE", "AURICO", "HCM", "VCM", "GAMMAGT", "MAGNESIO",
	"VB12", "PCR", "HDL", "LDH", "LDL", "FERRIT", "LINFOS", "BILRTOT",
	"BILIDIR", "NEUTROF", "LEUCOCIT", "HEMATIES", "BASOF", "BUN", "SODIO",
	"MONOCIT", "EOSINOF", "COLESTER", "CO2", "CPK", "VSG", "PTH-I", "TSH",
	"HDLCOLES", "LDLCOLES", "AFOLICO", "VD25",
}

// backfillMonths is how far past the period a missing parameter may be
// taken from a more recent analysis.
const backfillMonths = 18

// Executor is the slice of the federated executor the collector needs.
type Executor interface {
	Execute(ctx context.Context, sources []source.Descriptor, queries []string) []source.Outcome
}

// Panel is one patient's consolidated panel: the values of the first
// analysis inside the period, with gaps filled from more recent analyses.
// Values are keyed by reference parameter code; a zero result means the
// parameter was not measured and never appears.
type Panel struct {
	PatientID string             `json:"patient_id"`
	Source    string             `json:"source"`
	Date      string             `json:"date,omitempty"`
	Values    map[string]float64 `json:"values"`
}

// Collector pulls lab panels from each center and canonicalizes the
// parameter codes.
type Collector struct {
	eq   *catalog.Equivalences
	exec Executor
	log  zerolog.Logger
	now  func() time.Time
}

func NewCollector(eq *catalog.Equivalences, exec Executor, log zerolog.Logger) *Collector {
	return &Collector{eq: eq, exec: exec, log: log, now: time.Now}
}

// Collect queries every source for the patients' panels in the period.
// Failed sources are logged and skipped, never fatal. A second pass fills
// parameters still missing from analyses inside the backfill window.
func (c *Collector) Collect(ctx context.Context, patientIDs []string, sources []source.Descriptor, iv query.Interval) []Panel {
	if len(patientIDs) == 0 || len(sources) == 0 {
		return nil
	}
	patients := quoteList(patientIDs)
	params := quoteList(c.parameterList())

	queries := make([]string, len(sources))
	for i := range sources {
		queries[i] = panelQuery(patients, params, iv)
	}

	byPatient := map[string]*Panel{}
	var order []string
	for _, o := range c.exec.Execute(ctx, sources, queries) {
		if o.Err != nil {
			c.log.Error().Err(o.Err).
				Str("source", o.Source.DisplayName()).
				Msg("panel query failed, skipping source")
			continue
		}
		for _, row := range o.Rows {
			pid := text(row.Values["NREGGEN"])
			if pid == "" {
				continue
			}
			p, ok := byPatient[pid]
			if !ok {
				p = &Panel{
					PatientID: pid,
					Source:    o.Source.DisplayName(),
					Date:      reportDate(row.Values["FECHA"]),
					Values:    map[string]float64{},
				}
				byPatient[pid] = p
				order = append(order, pid)
			}
			c.apply(p, row)
		}
	}
	if len(order) == 0 {
		return nil
	}

	c.backfill(ctx, byPatient, patients, params, sources)

	out := make([]Panel, 0, len(order))
	for _, pid := range order {
		out = append(out, *byPatient[pid])
	}
	return out
}

// backfill runs the lookback query and fills parameters still missing on
// known patients. Rows come back newest first, so the first value seen for
// a gap is the most recent one.
func (c *Collector) backfill(ctx context.Context, byPatient map[string]*Panel, patients, params string, sources []source.Descriptor) {
	end := c.now()
	start := end.AddDate(0, -backfillMonths, 0)

	queries := make([]string, len(sources))
	for i := range sources {
		queries[i] = backfillQuery(patients, params,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	for _, o := range c.exec.Execute(ctx, sources, queries) {
		if o.Err != nil {
			c.log.Warn().Err(o.Err).
				Str("source", o.Source.DisplayName()).
				Msg("panel backfill failed, skipping source")
			continue
		}
		for _, row := range o.Rows {
			p, ok := byPatient[text(row.Values["NREGGEN"])]
			if !ok {
				continue
			}
			c.apply(p, row)
		}
	}
}

// apply canonicalizes one result row onto the panel. The first value per
// reference parameter wins; zero results count as not measured.
func (c *Collector) apply(p *Panel, row source.Row) {
	code := c.eq.Resolve(text(row.Values["CODANAL"]))
	if code == "" {
		return
	}
	v := numeric(row.Values["VALOR"])
	if v == nil || *v == 0 {
		return
	}
	if _, exists := p.Values[code]; !exists {
		p.Values[code] = *v
	}
}

// parameterList is the reference panel plus every known alias spelling,
// deduplicated, in a stable order.
func (c *Collector) parameterList() []string {
	seen := map[string]struct{}{}
	var list []string
	add := func(code string) {
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		list = append(list, code)
	}
	for _, p := range referenceParameters {
		add(p)
	}
	aliases := c.eq.Aliases()
	keys := make([]string, 0, len(aliases))
	for alias := range aliases {
		keys = append(keys, alias)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		add(alias)
	}
	return list
}

// panelQuery selects every requested result of each patient's first
// analysis inside the period.
func panelQuery(patients, params string, iv query.Interval) string {
	return fmt.Sprintf(`
		SELECT
			a.NREGGEN,
			a.NUMANALISIS,
			a.FECHA,
			r.CODANAL,
			r.VALOR
		FROM ANALISIS a
		JOIN RESULANAL r ON a.NUMANALISIS = r.ANALISIS
		WHERE a.NREGGEN IN (%s)
			AND a.FECHA BETWEEN '%s' AND '%s'
			AND r.CODANAL IN (%s)
			AND a.FECHA = (
				SELECT MIN(a2.FECHA)
				FROM ANALISIS a2
				JOIN RESULANAL r2 ON a2.NUMANALISIS = r2.ANALISIS
				WHERE a2.NREGGEN = a.NREGGEN
					AND a2.FECHA BETWEEN '%s' AND '%s'
					AND r2.CODANAL IN (%s)
			)
		ORDER BY a.NREGGEN, a.FECHA DESC`,
		patients, iv.StartISO(), iv.EndISO(), params,
		iv.StartISO(), iv.EndISO(), params)
}

// backfillQuery selects every requested result in the lookback window,
// newest analyses first.
func backfillQuery(patients, params, start, end string) string {
	return fmt.Sprintf(`
		SELECT
			a.NREGGEN,
			a.NUMANALISIS,
			a.FECHA,
			r.CODANAL,
			r.VALOR
		FROM ANALISIS a
		JOIN RESULANAL r ON a.NUMANALISIS = r.ANALISIS
		WHERE a.NREGGEN IN (%s)
			AND a.FECHA BETWEEN '%s' AND '%s'
			AND r.CODANAL IN (%s)
		ORDER BY a.NREGGEN, a.FECHA DESC`,
		patients, start, end, params)
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
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

// reportDate renders the analysis date as DD-MM-YYYY, the format the
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
