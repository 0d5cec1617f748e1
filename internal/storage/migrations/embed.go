package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds all ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// Migration is one embedded SQL file. Name doubles as its version key in
// the schema_migrations table.
type Migration struct {
	Name string
	SQL  string
}

// Load returns the non-empty .sql files of dir in lexical order.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	names, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob %s migrations: %w", dir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations embedded", dir)
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, path := range names {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: strings.TrimPrefix(path, dir+"/"), SQL: string(data)})
	}
	return out, nil
}

// Pending filters out migrations whose names are in applied, keeping order.
func Pending(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Name] {
			out = append(out, m)
		}
	}
	return out
}
