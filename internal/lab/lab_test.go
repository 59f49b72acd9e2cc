package lab

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

type fakeResult struct {
	rows []source.Row
	err  error
}

// fakeExecutor answers one round per Execute call, keyed by source code.
type fakeExecutor struct {
	rounds  []map[string]fakeResult
	queries [][]string
}

func (f *fakeExecutor) Execute(_ context.Context, sources []source.Descriptor, queries []string) []source.Outcome {
	call := len(f.queries)
	f.queries = append(f.queries, queries)

	var round map[string]fakeResult
	if call < len(f.rounds) {
		round = f.rounds[call]
	}

	out := make([]source.Outcome, len(sources))
	for i, d := range sources {
		res := round[d.Code]
		state := source.StateDone
		if res.err != nil {
			state = source.StateFailed
		}
		out[i] = source.Outcome{Source: d, State: state, Rows: res.rows, Err: res.err}
	}
	return out
}

func resultRow(patient, date, codanal string, valor float64) source.Row {
	return source.Row{
		Columns: []string{"NREGGEN", "NUMANALISIS", "FECHA", "CODANAL", "VALOR"},
		Values: map[string]any{
			"NREGGEN":     patient,
			"NUMANALISIS": int64(1),
			"FECHA":       date,
			"CODANAL":     codanal,
			"VALOR":       valor,
		},
	}
}

func testCollector(exec Executor) *Collector {
	logger := zerolog.New(os.Stderr)
	c := NewCollector(catalog.NewEquivalences(logger), exec, logger)
	c.now = func() time.Time { return time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC) }
	return c
}

func testInterval(t *testing.T) query.Interval {
	t.Helper()
	iv, err := query.ParseInterval("01-03-2025", "31-03-2025")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	return iv
}

func TestCollect_CanonicalizesParameterCodes(t *testing.T) {
	getafe := source.Descriptor{Code: "DB1", Name: "Getafe", Database: "/NFS/restores/NF6_GETAFE.gdb"}
	exec := &fakeExecutor{rounds: []map[string]fakeResult{
		{"DB1": {rows: []source.Row{
			resultRow("P1", "2025-03-05", "HGB", 11.8),
			resultRow("P1", "2025-03-05", "K", 4.9),
			resultRow("P1", "2025-03-05", "CALCIO", 9.1),
			resultRow("P1", "2025-03-05", "UREA", 0), // not measured
		}}},
		{},
	}}

	panels := testCollector(exec).Collect(context.Background(), []string{"P1"}, []source.Descriptor{getafe}, testInterval(t))

	if len(panels) != 1 {
		t.Fatalf("expected 1 panel, got %d", len(panels))
	}
	p := panels[0]
	if p.PatientID != "P1" || p.Source != "Getafe" {
		t.Errorf("unexpected panel identity: %+v", p)
	}
	if p.Date != "05-03-2025" {
		t.Errorf("expected date 05-03-2025, got %s", p.Date)
	}
	want := map[string]float64{"HEMOG": 11.8, "POTASIO": 4.9, "CALCIO": 9.1}
	if len(p.Values) != len(want) {
		t.Fatalf("expected %d values, got %v", len(want), p.Values)
	}
	for k, v := range want {
		if p.Values[k] != v {
			t.Errorf("expected %s=%v, got %v", k, v, p.Values[k])
		}
	}
	if _, ok := p.Values["UREA"]; ok {
		t.Error("zero result must not land on the panel")
	}

	q := exec.queries[0][0]
	for _, frag := range []string{
		"FROM ANALISIS",
		"BETWEEN '2025-03-01' AND '2025-03-31'",
		"'HEMOG'", // reference code requested
		"'HGB'",   // alias spelling requested too
		"MIN(a2.FECHA)",
	} {
		if !strings.Contains(q, frag) {
			t.Errorf("panel query missing %q", frag)
		}
	}
}

func TestCollect_FirstValueWinsAcrossSources(t *testing.T) {
	a := source.Descriptor{Code: "DB1", Name: "A"}
	b := source.Descriptor{Code: "DB2", Name: "B"}
	exec := &fakeExecutor{rounds: []map[string]fakeResult{
		{
			"DB1": {rows: []source.Row{resultRow("P1", "2025-03-05", "HEMOG", 11.8)}},
			"DB2": {rows: []source.Row{
				resultRow("P1", "2025-03-12", "HEMOG", 12.5),
				resultRow("P1", "2025-03-12", "ALBUMINA", 3.9),
			}},
		},
		{},
	}}

	panels := testCollector(exec).Collect(context.Background(), []string{"P1"}, []source.Descriptor{a, b}, testInterval(t))

	if len(panels) != 1 {
		t.Fatalf("expected 1 merged panel, got %d", len(panels))
	}
	p := panels[0]
	if p.Source != "A" {
		t.Errorf("expected first contributing source A, got %s", p.Source)
	}
	if p.Values["HEMOG"] != 11.8 {
		t.Errorf("expected first HEMOG value to win, got %v", p.Values["HEMOG"])
	}
	if p.Values["ALBUMINA"] != 3.9 {
		t.Errorf("expected missing parameter filled from the second source, got %v", p.Values["ALBUMINA"])
	}
}

func TestCollect_BackfillFillsOnlyMissing(t *testing.T) {
	d := source.Descriptor{Code: "DB1", Name: "A"}
	exec := &fakeExecutor{rounds: []map[string]fakeResult{
		{"DB1": {rows: []source.Row{resultRow("P1", "2025-03-05", "HEMOG", 11.8)}}},
		{"DB1": {rows: []source.Row{
			resultRow("P1", "2025-04-02", "HEMOG", 13.0),  // already present
			resultRow("P1", "2025-04-02", "CALCIO", 9.4),  // fills the gap
			resultRow("P2", "2025-04-02", "CALCIO", 10.0), // unknown patient
		}}},
	}}

	panels := testCollector(exec).Collect(context.Background(), []string{"P1", "P2"}, []source.Descriptor{d}, testInterval(t))

	if len(panels) != 1 {
		t.Fatalf("expected 1 panel, got %d", len(panels))
	}
	p := panels[0]
	if p.Values["HEMOG"] != 11.8 {
		t.Errorf("backfill must not overwrite, got HEMOG=%v", p.Values["HEMOG"])
	}
	if p.Values["CALCIO"] != 9.4 {
		t.Errorf("expected CALCIO backfilled as 9.4, got %v", p.Values["CALCIO"])
	}

	if len(exec.queries) != 2 {
		t.Fatalf("expected panel and backfill rounds, got %d", len(exec.queries))
	}
	bq := exec.queries[1][0]
	if !strings.Contains(bq, "BETWEEN '2023-10-15' AND '2025-04-15'") {
		t.Errorf("backfill query missing lookback window: %s", bq)
	}
}

func TestCollect_SourceFailureIsIsolated(t *testing.T) {
	a := source.Descriptor{Code: "DB1", Name: "A"}
	b := source.Descriptor{Code: "DB2", Name: "B"}
	exec := &fakeExecutor{rounds: []map[string]fakeResult{
		{
			"DB1": {err: errors.New("unavailable database")},
			"DB2": {rows: []source.Row{resultRow("P1", "2025-03-10", "HEMOG", 12.1)}},
		},
		{"DB1": {err: errors.New("unavailable database")}},
	}}

	panels := testCollector(exec).Collect(context.Background(), []string{"P1"}, []source.Descriptor{a, b}, testInterval(t))

	if len(panels) != 1 {
		t.Fatalf("expected 1 panel from the healthy source, got %d", len(panels))
	}
	if panels[0].Source != "B" || panels[0].Values["HEMOG"] != 12.1 {
		t.Errorf("unexpected panel: %+v", panels[0])
	}
}

func TestCollect_NoInputs(t *testing.T) {
	exec := &fakeExecutor{}
	c := testCollector(exec)
	iv := testInterval(t)

	if got := c.Collect(context.Background(), nil, []source.Descriptor{{Code: "DB1"}}, iv); got != nil {
		t.Errorf("expected nil for empty patient list, got %v", got)
	}
	if got := c.Collect(context.Background(), []string{"P1"}, nil, iv); got != nil {
		t.Errorf("expected nil for empty source list, got %v", got)
	}
	if len(exec.queries) != 0 {
		t.Errorf("expected no queries dispatched, got %d rounds", len(exec.queries))
	}
}
