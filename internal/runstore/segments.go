package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const segmentColumns = "run_id, idx, state, text, min_words, max_words, prompt, image_path, audio_path, duration_ms, failed_stage, error_message, attempts, updated_at"

func scanSegment(scanner interface{ Scan(dest ...any) error }) (Segment, error) {
	var (
		seg          Segment
		prompt       sql.NullString
		imagePath    sql.NullString
		audioPath    sql.NullString
		durationMS   int64
		failedStage  sql.NullString
		errorMessage sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&seg.RunID,
		&seg.Index,
		&seg.State,
		&seg.Text,
		&seg.MinWords,
		&seg.MaxWords,
		&prompt,
		&imagePath,
		&audioPath,
		&durationMS,
		&failedStage,
		&errorMessage,
		&seg.Attempts,
		&updatedRaw,
	); err != nil {
		return Segment{}, err
	}
	seg.Prompt = prompt.String
	seg.ImagePath = imagePath.String
	seg.AudioPath = audioPath.String
	seg.Duration = time.Duration(durationMS) * time.Millisecond
	seg.FailedStage = failedStage.String
	seg.ErrorMessage = errorMessage.String
	if updated, err := parseTimeString(updatedRaw); err == nil {
		seg.UpdatedAt = updated
	}
	return seg, nil
}

// SaveSegment inserts or replaces the row for (RunID, Index).
func (s *Store) SaveSegment(ctx context.Context, seg Segment) error {
	if strings.TrimSpace(seg.RunID) == "" {
		return errors.New("segment run id is required")
	}
	if seg.Index < 0 {
		return fmt.Errorf("segment index %d is negative", seg.Index)
	}
	if seg.State == "" {
		seg.State = SegmentPlanned
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO segments (`+segmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id, idx) DO UPDATE SET
             state = excluded.state, text = excluded.text,
             min_words = excluded.min_words, max_words = excluded.max_words,
             prompt = excluded.prompt, image_path = excluded.image_path,
             audio_path = excluded.audio_path, duration_ms = excluded.duration_ms,
             failed_stage = excluded.failed_stage, error_message = excluded.error_message,
             attempts = excluded.attempts, updated_at = excluded.updated_at`,
		seg.RunID,
		seg.Index,
		seg.State,
		seg.Text,
		seg.MinWords,
		seg.MaxWords,
		nullableString(seg.Prompt),
		nullableString(seg.ImagePath),
		nullableString(seg.AudioPath),
		seg.Duration.Milliseconds(),
		nullableString(seg.FailedStage),
		nullableString(seg.ErrorMessage),
		seg.Attempts,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save segment %d: %w", seg.Index, err)
	}
	return nil
}

// ReplaceSegments swaps the full segment set of a run in one transaction. It
// is used after planning and when survivors are renumbered.
func (s *Store) ReplaceSegments(ctx context.Context, runID string, segs []Segment) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin segments tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		now := formatTime(time.Now())
		for _, seg := range segs {
			if seg.State == "" {
				seg.State = SegmentPlanned
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO segments (`+segmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID,
				seg.Index,
				seg.State,
				seg.Text,
				seg.MinWords,
				seg.MaxWords,
				nullableString(seg.Prompt),
				nullableString(seg.ImagePath),
				nullableString(seg.AudioPath),
				seg.Duration.Milliseconds(),
				nullableString(seg.FailedStage),
				nullableString(seg.ErrorMessage),
				seg.Attempts,
				now,
			); err != nil {
				return fmt.Errorf("insert segment %d: %w", seg.Index, err)
			}
		}
		return tx.Commit()
	})
}

// Segments returns every segment of a run ordered by index.
func (s *Store) Segments(ctx context.Context, runID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+segmentColumns+` FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	var segs []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}
