// Package database holds what the result store backends share: the Store
// contract the CLI wires up and the schema statement splitter.
package database

import (
	"context"
	"strings"

	"github.com/JonMunkholm/labimport/internal/core"
)

// Store is a result repository that owns its connection and schema.
type Store interface {
	core.ResultRepository
	Migrate(ctx context.Context) error
	Close() error
}

// SplitStatements splits a schema file into single statements. Statements are
// separated by ";" at the end of a line; "--" comment lines are dropped.
func SplitStatements(schema string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(schema, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(cur.String()); stmt != ";" {
				stmts = append(stmts, strings.TrimSuffix(stmt, ";"))
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
