package instrument

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

type fakeExecutor struct {
	rows    map[string][]source.Row
	errs    map[string]error
	queries map[string]string
}

func (f *fakeExecutor) Execute(_ context.Context, sources []source.Descriptor, queries []string) []source.Outcome {
	if f.queries == nil {
		f.queries = map[string]string{}
	}
	out := make([]source.Outcome, len(sources))
	for i, d := range sources {
		f.queries[d.Code] = queries[i]
		if err := f.errs[d.Code]; err != nil {
			out[i] = source.Outcome{Source: d, State: source.StateFailed, Err: err}
			continue
		}
		out[i] = source.Outcome{Source: d, State: source.StateDone, Rows: f.rows[d.Code]}
	}
	return out
}

func answerRow(pid string, date time.Time, total, orden, puntos any) source.Row {
	return source.Row{
		Columns: []string{"NREGGEN", "FECHA", "PUNTOS_TOT", "CODTEST", "CODRESPUESTA", "PUNTOS", "ORDEN"},
		Values: map[string]any{
			"NREGGEN": pid, "FECHA": date, "PUNTOS_TOT": total,
			"PUNTOS": puntos, "ORDEN": orden,
		},
	}
}

func collectorFixture(t *testing.T, exec Executor, codes map[string]map[string]int) (*Collector, []source.Descriptor) {
	t.Helper()
	c := NewCollector(catalog.NewTestsFromMap(codes), exec, zerolog.Nop())
	sources := []source.Descriptor{
		{Code: "DB1", Database: "/NFS/restores/NF6_Getafe.gdb", Name: "Getafe"},
		{Code: "DB2", Database: "/NFS/restores/NF6_HRJC.gdb", Name: "HRJC"},
	}
	return c, sources
}

func mustIv(t *testing.T) query.Interval {
	t.Helper()
	iv, err := query.ParseInterval("01-03-2025", "31-03-2025")
	if err != nil {
		t.Fatal(err)
	}
	return iv
}

func TestCollect_ClassifiesLatestAssessment(t *testing.T) {
	when := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: map[string][]source.Row{
		"DB1": {
			answerRow("P1", when, int64(6), int64(10), int64(3)),
			answerRow("P1", when, int64(6), int64(20), int64(3)),
			answerRow("P2", when, int64(1), int64(10), int64(1)),
		},
	}}
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"DOWNTON": {"/NFS/restores/NF6_Getafe.gdb": 104},
	})

	got := c.Collect(context.Background(), Downton, []string{"P1", "P2"}, sources[:1], mustIv(t))
	if len(got) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(got))
	}

	p1 := got[0]
	if p1.PatientID != "P1" || p1.Source != "Getafe" || p1.Date != "12-03-2025" {
		t.Errorf("unexpected header fields: %+v", p1)
	}
	if p1.Sum == nil || *p1.Sum != 6 {
		t.Fatalf("sum = %v, want 6", p1.Sum)
	}
	if p1.Class == nil || p1.Class.Ordinal != 3 || p1.Class.Label != "Riesgo alto" {
		t.Errorf("classification = %+v, want (3, Riesgo alto)", p1.Class)
	}
	if p1.Items["104_10"] != 3 || p1.Items["104_20"] != 3 {
		t.Errorf("items = %v", p1.Items)
	}

	p2 := got[1]
	if p2.Class == nil || p2.Class.Ordinal != 1 {
		t.Errorf("P2 classification = %+v, want riesgo bajo", p2.Class)
	}

	// dispatched query carries the test code, the period and the patients
	q := exec.queries["DB1"]
	for _, want := range []string{"CODTEST = 104", "'2025-03-01' AND '2025-03-31'", "'P1','P2'"} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestCollect_AppliesOrderScaleOverride(t *testing.T) {
	when := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: map[string][]source.Row{
		// HRJC stores DOWNTON orderings ×10
		"DB2": {answerRow("P9", when, int64(2), int64(30), int64(2))},
	}}
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"DOWNTON": {"/NFS/restores/NF6_HRJC.gdb": 104},
	})

	got := c.Collect(context.Background(), Downton, []string{"P9"}, sources[1:], mustIv(t))
	if len(got) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(got))
	}
	if _, ok := got[0].Items["104_3"]; !ok {
		t.Errorf("items = %v, want key 104_3 after the /10 transform", got[0].Items)
	}
}

func TestCollect_PHQ4SubScores(t *testing.T) {
	when := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: map[string][]source.Row{
		"DB1": {
			// anxiety items only; depression never recorded
			answerRow("P1", when, int64(4), int64(10), int64(2)),
			answerRow("P1", when, int64(4), int64(20), int64(2)),
		},
	}}
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"PHQ4": {"/NFS/restores/NF6_Getafe.gdb": 150},
	})

	got := c.Collect(context.Background(), PHQ4, []string{"P1"}, sources[:1], mustIv(t))
	if len(got) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(got))
	}
	a := got[0]
	if a.AnxietySum == nil || *a.AnxietySum != 4 || a.Anxiety == nil || a.Anxiety.Label != "Sí" {
		t.Errorf("anxiety = %v %+v, want 4 Sí", a.AnxietySum, a.Anxiety)
	}
	if a.DepressionSum != nil || a.Depression != nil {
		t.Errorf("depression must stay unset without data: %v %+v", a.DepressionSum, a.Depression)
	}
}

func TestCollect_SkipsSourcesWithoutCodeAndFailures(t *testing.T) {
	when := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{
		rows: map[string][]source.Row{
			"DB1": {answerRow("P1", when, int64(0), int64(10), int64(0))},
		},
		errs: map[string]error{"DB2": errors.New("shutdown in progress")},
	}
	// DOWNTON known for both, but DB2 fails at execution
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"DOWNTON": {
			"/NFS/restores/NF6_Getafe.gdb": 104,
			"/NFS/restores/NF6_HRJC.gdb":   104,
		},
	})

	got := c.Collect(context.Background(), Downton, []string{"P1"}, sources, mustIv(t))
	if len(got) != 1 || got[0].Source != "Getafe" {
		t.Fatalf("expected only Getafe's assessment, got %+v", got)
	}

	// no code anywhere: nothing to collect
	c2, _ := collectorFixture(t, exec, map[string]map[string]int{})
	if got := c2.Collect(context.Background(), Downton, []string{"P1"}, sources, mustIv(t)); got != nil {
		t.Errorf("expected nil without test codes, got %v", got)
	}
}

func TestCollect_RowsWithoutOrderStillCarrySum(t *testing.T) {
	when := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: map[string][]source.Row{
		"DB1": {answerRow("P1", when, int64(12), nil, nil)},
	}}
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"BARTHEL": {"/NFS/restores/NF6_Getafe.gdb": 4},
	})

	got := c.Collect(context.Background(), Barthel, []string{"P1"}, sources[:1], mustIv(t))
	if len(got) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(got))
	}
	a := got[0]
	if len(a.Items) != 0 {
		t.Errorf("items = %v, want none", a.Items)
	}
	if a.Class == nil || a.Class.Label != "Problema grave" {
		t.Errorf("classification = %+v, want Problema grave for sum 12", a.Class)
	}
}

func TestCollect_ItemKeysUseReferenceCode(t *testing.T) {
	when := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: map[string][]source.Row{
		"DB1": {answerRow("P1", when, int64(4), int64(10), int64(2))},
	}}
	// The center stores Downton under a local test code.
	c, sources := collectorFixture(t, exec, map[string]map[string]int{
		"DOWNTON": {"/NFS/restores/NF6_Getafe.gdb": 204},
	})

	got := c.Collect(context.Background(), Downton, []string{"P1"}, sources[:1], mustIv(t))

	if len(got) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(got))
	}
	if _, ok := got[0].Items["104_10"]; !ok {
		t.Errorf("items = %v, want reference-code key 104_10", got[0].Items)
	}
	if !strings.Contains(exec.queries["DB1"], "CODTEST = 204") {
		t.Errorf("query must use the center's local code: %s", exec.queries["DB1"])
	}
}
