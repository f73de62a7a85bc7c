package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// InstallView drops and recreates the dataset's typed view over the
// committed destination table. Promotion installs the view itself;
// this path serves view-spec changes between runs.
func (s *Store) InstallView(ctx context.Context) error {
	exists, err := s.tableExists(ctx, s.ds.Destination.Table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: destination table %s does not exist, run the dataset first",
			domain.ErrNotFound, s.ds.Destination.Table)
	}

	if _, err := s.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+s.ds.EffectiveViewName()); err != nil {
		return fmt.Errorf("dropping typed view: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, buildViewSQL(s.d, s.ds)); err != nil {
		return fmt.Errorf("installing typed view: %w", err)
	}
	return nil
}

// buildViewSQL renders the typed, deduplicated projection: one row per
// natural key, the most recently ingested staging row winning and the
// higher sequence breaking ties. The natural key always projects, as
// text, ahead of the declared columns. Every projected column is
// guarded, so a drifted value reads as NULL instead of aborting the
// query.
func buildViewSQL(d dialect, ds *domain.Dataset) string {
	keys := make([]string, len(ds.View.NaturalKey))
	for i, f := range ds.View.NaturalKey {
		keys[i] = d.ExtractExpr(f)
	}

	projected := ds.View.EffectiveColumns()
	cols := make([]string, len(projected))
	for i, c := range projected {
		cols[i] = fmt.Sprintf("%s AS %s", d.CastExpr(c), c.Name)
	}

	return fmt.Sprintf(
		"CREATE VIEW %s AS SELECT %s FROM (SELECT payload, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY ingested_at DESC, sequence DESC) AS rn FROM %s) ranked WHERE rn = 1",
		ds.EffectiveViewName(),
		strings.Join(cols, ", "),
		strings.Join(keys, ", "),
		ds.Destination.Table)
}
