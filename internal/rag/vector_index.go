package rag

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/jjckrbbt/phoenix/internal/connections"
)

const defaultVectorTable = "rag_chunks"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// vectorIndex searches a pgvector table with columns
// id, content, source and embedding.
type vectorIndex struct {
	db    *connections.Client
	table string
}

// parseVectorLocation splits a postgres:// index location into the DSN to
// connect with and the table to search. The table comes from the "table"
// query parameter, which is removed from the DSN.
func parseVectorLocation(location string) (dsn, table string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid vector index location: %w", err)
	}
	q := u.Query()
	table = q.Get("table")
	if table == "" {
		table = defaultVectorTable
	}
	if !tableNamePattern.MatchString(table) {
		return "", "", fmt.Errorf("invalid vector table name '%s'", table)
	}
	q.Del("table")
	u.RawQuery = q.Encode()
	return u.String(), table, nil
}

func isVectorLocation(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	table := pgx.Identifier(strings.Split(v.table, ".")).Sanitize()
	sql := fmt.Sprintf(`SELECT id::text, content, COALESCE(source, ''), 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, table)

	rows, err := v.db.Pool.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s failed: %w", v.table, err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.Text, &sc.Source, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan vector search row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search on %s failed: %w", v.table, err)
	}
	return out, nil
}
