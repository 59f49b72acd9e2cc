package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeConn struct {
	rows     []Row
	queryErr error
	closed   *bool
	delay    time.Duration
}

func (c *fakeConn) Query(ctx context.Context, _ string) ([]Row, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) Close() error {
	*c.closed = true
	return nil
}

type fakeDialer struct {
	conns   map[string]*fakeConn
	dialErr map[string]error
}

func (d *fakeDialer) Dial(_ context.Context, desc Descriptor) (Conn, error) {
	if err := d.dialErr[desc.Code]; err != nil {
		return nil, err
	}
	return d.conns[desc.Code], nil
}

func descriptors(codes ...string) []Descriptor {
	out := make([]Descriptor, len(codes))
	for i, c := range codes {
		out[i] = Descriptor{Code: c, Database: "/NFS/restores/NF6_" + c + ".gdb"}
	}
	return out
}

func TestExecute_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	closedA, closedC := false, false
	dialer := &fakeDialer{
		conns: map[string]*fakeConn{
			"A": {rows: []Row{{Columns: []string{"RESULTADO"}, Values: map[string]any{"RESULTADO": 5}}}, closed: &closedA},
			"C": {rows: []Row{{Columns: []string{"RESULTADO"}, Values: map[string]any{"RESULTADO": 3}}}, closed: &closedC},
		},
		dialErr: map[string]error{"B": errors.New("network unreachable")},
	}
	e := NewExecutor(dialer, time.Second, time.Second, zerolog.Nop())

	srcs := descriptors("A", "B", "C")
	out := e.Execute(context.Background(), srcs, []string{"q", "q", "q"})

	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
	for i, want := range []string{"A", "B", "C"} {
		if out[i].Source.Code != want {
			t.Errorf("outcome %d is %s, want %s (order must be preserved)", i, out[i].Source.Code, want)
		}
	}

	if out[0].State != StateDone || out[0].Err != nil {
		t.Errorf("source A: state %s err %v, want done", out[0].State, out[0].Err)
	}
	if out[1].State != StateFailed || out[1].Err == nil {
		t.Errorf("source B: state %s err %v, want failed", out[1].State, out[1].Err)
	}
	if len(out[1].Rows) != 0 {
		t.Errorf("failed source must carry no rows, got %d", len(out[1].Rows))
	}
	if out[2].State != StateDone || len(out[2].Rows) != 1 {
		t.Errorf("source C after B's failure: state %s rows %d, want done with rows", out[2].State, len(out[2].Rows))
	}

	if !closedA || !closedC {
		t.Errorf("connections must be released: A closed=%v C closed=%v", closedA, closedC)
	}
}

func TestExecute_QueryFailureReleasesConnection(t *testing.T) {
	closed := false
	dialer := &fakeDialer{
		conns: map[string]*fakeConn{
			"A": {queryErr: errors.New("table SESIONES unknown"), closed: &closed},
		},
	}
	e := NewExecutor(dialer, time.Second, time.Second, zerolog.Nop())

	out := e.Execute(context.Background(), descriptors("A"), []string{"q"})
	if out[0].State != StateFailed || out[0].Err == nil {
		t.Errorf("state %s err %v, want failed", out[0].State, out[0].Err)
	}
	if !closed {
		t.Error("connection not released after query failure")
	}
}

func TestExecute_QueryTimeout(t *testing.T) {
	closed := false
	dialer := &fakeDialer{
		conns: map[string]*fakeConn{
			"A": {delay: 200 * time.Millisecond, closed: &closed},
		},
	}
	e := NewExecutor(dialer, time.Second, 10*time.Millisecond, zerolog.Nop())

	out := e.Execute(context.Background(), descriptors("A"), []string{"q"})
	if out[0].State != StateFailed {
		t.Fatalf("state %s, want failed on timeout", out[0].State)
	}
	if !errors.Is(out[0].Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", out[0].Err)
	}
	if !closed {
		t.Error("connection not released after timeout")
	}
}

func TestExecute_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialer := &fakeDialer{conns: map[string]*fakeConn{}}
	e := NewExecutor(dialer, time.Second, time.Second, zerolog.Nop())

	out := e.Execute(ctx, descriptors("A", "B"), []string{"q", "q"})
	for i := range out {
		if out[i].State != StateFailed || !errors.Is(out[i].Err, context.Canceled) {
			t.Errorf("outcome %d: state %s err %v, want failed with canceled", i, out[i].State, out[i].Err)
		}
	}
}

func TestDescriptor_DisplayName(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{Name: "Getafe", Database: "/NFS/restores/NF6_Getafe.gdb"}, "Getafe"},
		{Descriptor{Database: "/NFS/restores/NF6_Lauros.gdb"}, "Lauros"},
		{Descriptor{Database: "/data/centro.gdb"}, "centro"},
		{Descriptor{Code: "DB3"}, "DB3"},
	}
	for _, tt := range tests {
		if got := tt.d.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
