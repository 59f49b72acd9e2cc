package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/nakagami/firebirdsql"
)

// Conn is one open session against a center database.
type Conn interface {
	Query(ctx context.Context, query string) ([]Row, error)
	Close() error
}

// Dialer opens sessions. The executor depends on this interface so tests
// can script connect and query failures without a Firebird server.
type Dialer interface {
	Dial(ctx context.Context, d Descriptor) (Conn, error)
}

// Row is one result row. Columns keeps the select-list order so callers
// can fall back to "the first column" when no known value column matches.
type Row struct {
	Columns []string
	Values  map[string]any
}

// FirebirdDialer opens one session per source against the center's .gdb
// file over the wire protocol.
type FirebirdDialer struct{}

func (FirebirdDialer) Dial(ctx context.Context, d Descriptor) (Conn, error) {
	dsn := fmt.Sprintf("%s:%s@%s:%d%s", d.User, d.Password, d.Host, d.Port, d.Database)
	db, err := sql.Open("firebirdsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", d.DisplayName(), err)
	}
	// sql.Open is lazy; force the handshake under the connect deadline
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", d.DisplayName(), err)
	}
	return &firebirdConn{db: db, conn: conn}, nil
}

type firebirdConn struct {
	db   *sql.DB
	conn *sql.Conn
}

func (c *firebirdConn) Query(ctx context.Context, query string) ([]Row, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		values := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := raw[i].([]byte); ok {
				values[col] = string(b)
				continue
			}
			values[col] = raw[i]
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	return out, rows.Err()
}

func (c *firebirdConn) Close() error {
	err := c.conn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	return err
}
