package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickhouseConn is the subset of driver.Conn the migrator uses.
type ClickhouseConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
}

const chSchemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       String,
    applied_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree()
ORDER BY name`

// RunClickhouseMigrations applies the embedded ClickHouse files that are not
// yet recorded in schema_migrations, one statement per call since the native
// protocol rejects multi-statement queries. ClickHouse has no DDL
// transactions, so a file that fails halfway is retried in full next time;
// the files use IF NOT EXISTS for that reason. Returns the names applied.
func RunClickhouseMigrations(ctx context.Context, conn ClickhouseConn) ([]string, error) {
	files, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, chSchemaTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT DISTINCT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	var done []string
	for _, m := range Pending(files, applied) {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return done, fmt.Errorf("validate migration %s: %w", m.Name, err)
		}
		for _, stmt := range SplitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return done, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		if err := conn.Exec(ctx, "INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)", m.Name, time.Now().UTC()); err != nil {
			return done, fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		done = append(done, m.Name)
	}
	return done, nil
}

// SplitStatements drops -- comment lines and splits on semicolons.
// Semicolons inside string literals are not supported; validateNoSemicolonInStrings
// rejects such files before they are split.
func SplitStatements(input string) []string {
	var b strings.Builder
	for _, line := range strings.Split(input, "\n") {
		if t := strings.TrimSpace(line); t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var stmts []string
	for _, part := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func validateNoSemicolonInStrings(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			// '' is an escaped quote inside a literal
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}
