package sqldb

import (
	"context"
	"fmt"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// Promote swaps a complete batch into the destination table. With
// transactional DDL the swap-table build, the rename, the view
// recreation and the staging cleanup commit as one unit; on MySQL the
// same steps run sequentially around the atomic multi-table rename.
// Either way a reader sees the old destination or the new one, never a
// mixture, and any failure leaves the old destination in place.
func (s *Store) Promote(ctx context.Context, batch *domain.StagingBatch) error {
	if batch == nil {
		return domain.ErrNoBatch
	}
	if !batch.Complete() {
		return fmt.Errorf("%w: observed %d of %d records", domain.ErrBatchIncomplete,
			batch.Observed, batch.Expected)
	}
	if s.d.TxDDL() {
		return s.promoteTx(ctx, batch)
	}
	return s.promoteRename(ctx, batch)
}

func (s *Store) promoteTx(ctx context.Context, batch *domain.StagingBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("promoting batch %d: %w", batch.BatchID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range s.d.BuildSwapTableSQL(s.ds) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("building swap table: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, s.d.CopyBatchSQL(s.ds), batch.BatchID)
	if err != nil {
		return fmt.Errorf("copying batch %d: %w", batch.BatchID, err)
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("copying batch %d: %w", batch.BatchID, err)
	}
	if copied != batch.Expected {
		return fmt.Errorf("%w: copied %d of %d records", domain.ErrBatchIncomplete,
			copied, batch.Expected)
	}

	for _, stmt := range s.d.SwapSQL(s.ds, true) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swapping destination table: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, buildViewSQL(s.d, s.ds)); err != nil {
		return fmt.Errorf("installing typed view: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.d.Rebind(fmt.Sprintf("DELETE FROM %s WHERE batch_id = ?", s.ds.StagingTable())),
		batch.BatchID); err != nil {
		return fmt.Errorf("clearing staged batch %d: %w", batch.BatchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("promoting batch %d: %w", batch.BatchID, err)
	}
	return nil
}

// promoteRename is the non-transactional path. The destination table
// itself only changes inside the RENAME statement, which MySQL applies
// atomically; every step before it touches the swap table alone.
func (s *Store) promoteRename(ctx context.Context, batch *domain.StagingBatch) error {
	for _, stmt := range s.d.BuildSwapTableSQL(s.ds) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("building swap table: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, s.d.CopyBatchSQL(s.ds), batch.BatchID)
	if err != nil {
		return fmt.Errorf("copying batch %d: %w", batch.BatchID, err)
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("copying batch %d: %w", batch.BatchID, err)
	}
	if copied != batch.Expected {
		return fmt.Errorf("%w: copied %d of %d records", domain.ErrBatchIncomplete,
			copied, batch.Expected)
	}

	destExists, err := s.tableExists(ctx, s.ds.Destination.Table)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+s.ds.EffectiveViewName()); err != nil {
		return fmt.Errorf("dropping typed view: %w", err)
	}
	for _, stmt := range s.d.SwapSQL(s.ds, destExists) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swapping destination table: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, buildViewSQL(s.d, s.ds)); err != nil {
		return fmt.Errorf("installing typed view: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		s.d.Rebind(fmt.Sprintf("DELETE FROM %s WHERE batch_id = ?", s.ds.StagingTable())),
		batch.BatchID); err != nil {
		return fmt.Errorf("clearing staged batch %d: %w", batch.BatchID, err)
	}
	return nil
}

// DestinationCount returns the committed destination's row count, zero
// when no batch has ever been promoted.
func (s *Store) DestinationCount(ctx context.Context) (int64, error) {
	exists, err := s.tableExists(ctx, s.ds.Destination.Table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var n int64
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.ds.Destination.Table)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting destination rows: %w", err)
	}
	return n, nil
}
