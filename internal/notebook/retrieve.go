// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// QueryOptions holds parameters for notebook queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string.
	Query string

	// Kind filters by EntryKind.
	Kind types.EntryKind

	// Tags filters by one or more tags with AND semantics.
	Tags []string

	// PlanID filters by plan.
	PlanID string

	// Status filters by the status of the entry's plan.
	Status types.PlanStatus

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Kind == "" && len(q.Tags) == 0 && q.PlanID == "" && q.Status == ""
}

// QueryResult is a PlanningEntry with its plan's metadata attached.
type QueryResult struct {
	types.PlanningEntry
	PlanTitle  string           `json:"plan_title" yaml:"plan_title"`
	PlanStatus types.PlanStatus `json:"plan_status" yaml:"plan_status"`
}

// Retrieve queries the notebook with optional full-text search and
// structured filters. Results are ranked by relevance for full-text
// queries or sorted by plan_id, section, seq for structured-only queries.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT e.id, e.kind, e.content, e.plan_id, e.section, e.seq,
				e.confidence, e.tags,
				p.title, p.status, entries_fts.rank
			FROM entries_fts
			JOIN entries e ON e.rowid = entries_fts.rowid
			LEFT JOIN plans p ON e.plan_id = p.id
			WHERE entries_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT e.id, e.kind, e.content, e.plan_id, e.section, e.seq,
				e.confidence, e.tags,
				p.title, p.status, 0 AS rank
			FROM entries e
			LEFT JOIN plans p ON e.plan_id = p.id
			WHERE 1=1`)
	}

	if opts.Kind != "" {
		qb.WriteString(` AND e.kind = ?`)
		args = append(args, string(opts.Kind))
	}

	if opts.PlanID != "" {
		qb.WriteString(` AND e.plan_id = ?`)
		args = append(args, opts.PlanID)
	}

	if opts.Status != "" {
		qb.WriteString(` AND p.status = ?`)
		args = append(args, string(opts.Status))
	}

	for _, tag := range opts.Tags {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(e.tags) WHERE value = ?)`)
		args = append(args, tag)
	}

	if useFTS {
		qb.WriteString(` ORDER BY entries_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.plan_id, e.section, e.seq`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying notebook: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr         QueryResult
			kind       string
			tagsJSON   sql.NullString
			planTitle  sql.NullString
			planStatus sql.NullString
			rank       float64
		)

		if err := rows.Scan(
			&qr.ID, &kind, &qr.Content, &qr.PlanID, &qr.Section, &qr.Seq,
			&qr.Confidence, &tagsJSON,
			&planTitle, &planStatus, &rank,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		qr.Kind = types.EntryKind(kind)

		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &qr.Tags)
		}
		if planTitle.Valid {
			qr.PlanTitle = planTitle.String
		}
		if planStatus.Valid {
			qr.PlanStatus = types.PlanStatus(planStatus.String)
		}

		results = append(results, qr)
	}

	return results, rows.Err()
}

// Trace returns the source section an entry was extracted from, re-read
// from the plan document so the caller sees the current text.
func (s *Store) Trace(ctx context.Context, entryID string) (string, error) {
	var planID, section string

	err := s.db.QueryRowContext(ctx,
		`SELECT plan_id, section FROM entries WHERE id = ?`, entryID,
	).Scan(&planID, &section)

	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("entry %s not found", entryID)
		}
		return "", fmt.Errorf("looking up entry: %w", err)
	}

	mdPath := filepath.Join(s.plansDir, planID+".md")
	doc, err := plan.Load(mdPath)
	if err != nil {
		return "", err
	}

	// The section may have been renamed or removed since extraction;
	// an empty trace tells the caller the text has moved on.
	sec, ok := doc.FindSection(section)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(sec.Body), nil
}
