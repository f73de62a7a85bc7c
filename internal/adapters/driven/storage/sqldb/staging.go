package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// BeginBatch clears residue from earlier aborted runs and opens a new
// batch under the next monotonic id. The caller holds the run lock, so
// anything found in staging here is leftovers, never live data.
func (s *Store) BeginBatch(ctx context.Context, startedAt time.Time) (*domain.StagingBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.ds.StagingTable()); err != nil {
		return nil, fmt.Errorf("clearing stale staging rows: %w", err)
	}

	var last int64
	row := tx.QueryRowContext(ctx,
		s.d.Rebind(fmt.Sprintf("SELECT batch_id FROM %s WHERE dataset = ?", batchesTable)), s.ds.ID)
	switch err := row.Scan(&last); {
	case errors.Is(err, sql.ErrNoRows):
		last = 0
		if _, err := tx.ExecContext(ctx,
			s.d.Rebind(fmt.Sprintf("INSERT INTO %s (dataset, batch_id) VALUES (?, ?)", batchesTable)),
			s.ds.ID, int64(1)); err != nil {
			return nil, fmt.Errorf("recording batch id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading batch counter: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			s.d.Rebind(fmt.Sprintf("UPDATE %s SET batch_id = ? WHERE dataset = ?", batchesTable)),
			last+1, s.ds.ID); err != nil {
			return nil, fmt.Errorf("advancing batch id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}

	return &domain.StagingBatch{
		BatchID:   last + 1,
		DatasetID: s.ds.ID,
		StartedAt: startedAt,
	}, nil
}

// AppendPayloads writes one page of payloads in a single transaction,
// so a failed page leaves no partial rows behind.
func (s *Store) AppendPayloads(ctx context.Context, batchID int64, payloads []domain.StagedPayload) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("staging page: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.d.Rebind(fmt.Sprintf(
		"INSERT INTO %s (batch_id, sequence, payload, ingested_at) VALUES (?, ?, ?, ?)",
		s.ds.StagingTable())))
	if err != nil {
		return fmt.Errorf("staging page: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range payloads {
		if _, err := stmt.ExecContext(ctx, batchID, p.Sequence, p.Payload, s.d.BindTime(p.IngestedAt)); err != nil {
			return fmt.Errorf("staging sequence %d: %w", p.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("staging page: %w", err)
	}
	return nil
}

// ObservedCount returns how many payloads the batch has staged.
func (s *Store) ObservedCount(ctx context.Context, batchID int64) (int64, error) {
	var n int64
	row := s.db.QueryRowContext(ctx,
		s.d.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE batch_id = ?", s.ds.StagingTable())),
		batchID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting staged payloads: %w", err)
	}
	return n, nil
}

// DiscardBatch removes a batch's staging rows.
func (s *Store) DiscardBatch(ctx context.Context, batchID int64) error {
	_, err := s.db.ExecContext(ctx,
		s.d.Rebind(fmt.Sprintf("DELETE FROM %s WHERE batch_id = ?", s.ds.StagingTable())),
		batchID)
	if err != nil {
		return fmt.Errorf("discarding batch %d: %w", batchID, err)
	}
	return nil
}
