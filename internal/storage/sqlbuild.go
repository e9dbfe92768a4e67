package storage

import (
	"strconv"
	"strings"
)

// Placeholders returns n comma-separated '?' placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InsertOnConflictNothing builds INSERT ... ON CONFLICT DO NOTHING, which
// SQLite and Postgres both accept. Any unique violation is swallowed.
func InsertOnConflictNothing(table string, cols []string, vals []any) (string, []any) {
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		Placeholders(len(cols)) + ") ON CONFLICT DO NOTHING", vals
}

// InsertNotExists builds INSERT ... SELECT ... WHERE NOT EXISTS for backends
// without a conflict clause that is limited to unique keys. from is appended
// to the inner SELECT (" FROM DUAL" on MySQL, "" on SQL Server).
func InsertNotExists(table string, cols []string, vals []any, from string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") SELECT ")
	b.WriteString(Placeholders(len(cols)))
	b.WriteString(from)
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(c)
		b.WriteString(" = ?")
	}
	b.WriteString(")")

	args := make([]any, 0, 2*len(vals))
	args = append(args, vals...)
	args = append(args, vals...)
	return b.String(), args
}

// UpsertOnConflict builds the SQLite/Postgres insert-or-update of a row keyed
// by key. excluded is the pseudo-table name ("excluded" or "EXCLUDED").
func UpsertOnConflict(table string, cols []string, key, excluded string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == key {
			continue
		}
		sets = append(sets, c+" = "+excluded+"."+c)
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		Placeholders(len(cols)) + ") ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// LimitSuffix is the SelectTop rendering for backends with a LIMIT clause.
func LimitSuffix(n int, rest string) string {
	return "SELECT " + rest + " LIMIT " + strconv.Itoa(n)
}
