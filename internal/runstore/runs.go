package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = "id, title, state, source_kind, source_text, request_json, style_prefix, style_negative, template_id, output_path, segment_count, rendered_count, total_duration_ms, failed_stage, failed_index, error_message, created_at, updated_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run           Run
		title         sql.NullString
		requestJSON   sql.NullString
		stylePrefix   sql.NullString
		styleNegative sql.NullString
		templateID    sql.NullString
		outputPath    sql.NullString
		durationMS    int64
		failedStage   sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
		finishedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&title,
		&run.State,
		&run.SourceKind,
		&run.SourceText,
		&requestJSON,
		&stylePrefix,
		&styleNegative,
		&templateID,
		&outputPath,
		&run.SegmentCount,
		&run.RenderedCount,
		&durationMS,
		&failedStage,
		&run.FailedIndex,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Title = title.String
	run.RequestJSON = requestJSON.String
	run.StylePrefix = stylePrefix.String
	run.StyleNegative = styleNegative.String
	run.TemplateID = templateID.String
	run.OutputPath = outputPath.String
	run.TotalDuration = time.Duration(durationMS) * time.Millisecond
	run.FailedStage = failedStage.String
	run.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

// Create inserts a new run row. CreatedAt defaults to now.
func (s *Store) Create(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.State == "" {
		run.State = StatePlanning
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullableString(run.Title),
		run.State,
		run.SourceKind,
		run.SourceText,
		nullableString(run.RequestJSON),
		nullableString(run.StylePrefix),
		nullableString(run.StyleNegative),
		nullableString(run.TemplateID),
		nullableString(run.OutputPath),
		run.SegmentCount,
		run.RenderedCount,
		run.TotalDuration.Milliseconds(),
		nullableString(run.FailedStage),
		run.FailedIndex,
		nullableString(run.ErrorMessage),
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update persists every mutable column of run.
func (s *Store) Update(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET title = ?, state = ?, request_json = ?, style_prefix = ?, style_negative = ?,
             template_id = ?, output_path = ?, segment_count = ?, rendered_count = ?,
             total_duration_ms = ?, failed_stage = ?, failed_index = ?, error_message = ?,
             updated_at = ?, finished_at = ?
         WHERE id = ?`,
		nullableString(run.Title),
		run.State,
		nullableString(run.RequestJSON),
		nullableString(run.StylePrefix),
		nullableString(run.StyleNegative),
		nullableString(run.TemplateID),
		nullableString(run.OutputPath),
		run.SegmentCount,
		run.RenderedCount,
		run.TotalDuration.Milliseconds(),
		nullableString(run.FailedStage),
		run.FailedIndex,
		nullableString(run.ErrorMessage),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: no such run", run.ID)
	}
	return nil
}

// Get fetches a run by id. A missing run yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindByPrefix resolves a unique run id prefix, as typed on the command line.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Run, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("empty run id")
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY created_at DESC LIMIT 2`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()
	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// List returns runs newest first, optionally filtered by state. limit <= 0
// means no limit.
func (s *Store) List(ctx context.Context, limit int, states ...string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(states)+1)
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Delete removes a run and its segments.
func (s *Store) Delete(ctx context.Context, id string) error {
	// foreign_keys is a per-connection pragma; clear segments explicitly.
	if _, err := s.execWithRetry(ctx, `DELETE FROM segments WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}
