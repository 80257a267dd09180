// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notebook persists extracted planning entries and answers
// retrieval queries over them. The notebook is a SQLite database under
// planning/index/ with an FTS5 index over entry content; plan documents
// stay the source of truth and the database can be rebuilt from the
// extraction files at any time.
package notebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

const (
	extractedDir = "extracted"
	indexDir     = "index"
	dbFile       = "planning.db"
)

// Store manages the planning notebook SQLite database.
type Store struct {
	db          *sql.DB
	planningDir string
	plansDir    string
	maxResults  int
}

// NewStore opens or creates the notebook database at
// planning/index/planning.db, creating the schema if it does not exist.
func NewStore(cfg types.NotebookConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.PlanningDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:          db,
		planningDir: cfg.PlanningDir,
		plansDir:    cfg.PlansDir,
		maxResults:  maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			title TEXT,
			status TEXT,
			region TEXT,
			tags TEXT,
			source_path TEXT,
			created TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			plan_id TEXT NOT NULL REFERENCES plans(id),
			section TEXT,
			seq INTEGER,
			confidence REAL,
			tags TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_plan_id ON entries(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			plan_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='entries_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE entries_fts USING fts5(content, content=entries, content_rowid=rowid)`,
			`CREATE TRIGGER entries_ai AFTER INSERT ON entries BEGIN
				INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER entries_ad AFTER DELETE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER entries_au AFTER UPDATE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
				INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from a notebook indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of plans processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest reads extraction YAML files from planning/extracted/ and populates
// the database. Unchanged files are skipped by modification time, changed
// files replace their plan's entries. On success it refreshes export.yaml.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	extractDir := filepath.Join(s.planningDir, extractedDir)

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading extraction directory %s: %w", extractDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "-items.yaml") {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		planID := strings.TrimSuffix(entry.Name(), "-items.yaml")
		filePath := filepath.Join(extractDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		// Unchanged since the last indexing run?
		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE plan_id = ?`, planID,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", planID)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		data, err := os.ReadFile(filePath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			summary.Failed++
			continue
		}

		var result types.ExtractionResult
		if err := yaml.Unmarshal(data, &result); err != nil {
			fmt.Fprintf(w, "failed  %s: parse error: %v\n", planID, err)
			summary.Failed++
			continue
		}

		meta, sourcePath := s.loadPlanMeta(planID)

		if err := s.ingestPlan(ctx, planID, &result, meta, sourcePath, modTime, isUpdate); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d items)\n", planID, len(result.Items))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d items)\n", planID, len(result.Items))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	// Refresh the full export after a successful ingestion.
	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

func (s *Store) ingestPlan(ctx context.Context, planID string, result *types.ExtractionResult, meta *types.PlanMeta, sourcePath, modTime string, isUpdate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Remove old entries if updating.
	if isUpdate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE plan_id = ?`, planID); err != nil {
			return fmt.Errorf("deleting old entries: %w", err)
		}
	}

	// Upsert the plan record. Extraction outputs can outlive their plan
	// document (archived or renamed plans), so a missing document only
	// downgrades the record to a stub.
	if meta != nil {
		tagsJSON, _ := json.Marshal(meta.Tags)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plans (id, title, status, region, tags, source_path, created)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, status=excluded.status, region=excluded.region,
				tags=excluded.tags, source_path=excluded.source_path,
				created=excluded.created`,
			planID, meta.Title, string(meta.Status), meta.Region,
			string(tagsJSON), sourcePath, meta.Created,
		)
		if err != nil {
			return fmt.Errorf("upserting plan: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO plans (id) VALUES (?)`, planID,
		)
		if err != nil {
			return fmt.Errorf("inserting plan stub: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entries (id, kind, content, plan_id, section, seq, confidence, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range result.Items {
		tagsJSON, _ := json.Marshal(item.Tags)
		_, err := stmt.ExecContext(ctx,
			item.ID, string(item.Kind), item.Content, item.PlanID,
			item.Section, item.Seq, item.Confidence, string(tagsJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting entry %s: %w", item.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (plan_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(plan_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		planID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	return tx.Commit()
}

// loadPlanMeta parses plans/[planID].md for its frontmatter. Returns nil
// if the document does not exist or cannot be parsed.
func (s *Store) loadPlanMeta(planID string) (*types.PlanMeta, string) {
	path := filepath.Join(s.plansDir, planID+".md")
	doc, err := plan.Load(path)
	if err != nil {
		return nil, ""
	}
	return &doc.Meta, path
}
