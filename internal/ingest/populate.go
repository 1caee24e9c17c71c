package ingest

import (
	"context"
)

// Tally reports batch ingestion outcomes.
type Tally struct {
	Succeeded int
	Failed    int
}

// Populate ingests every key for which no row yet exists, across the three
// tables, sequentially. Per-key failures are logged and counted, then the
// batch continues; only a key-source query failure or context cancellation
// aborts the batch.
func (p *Pipeline) Populate(ctx context.Context) (Tally, error) {
	var tally Tally

	sessions, err := p.store.SessionsMissingLickTrace(ctx)
	if err != nil {
		return tally, err
	}
	for _, key := range sessions {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := p.IngestLickTrace(ctx, key); err != nil {
			tally.Failed++
			p.log.Errorw("Lick trace ingest failed", "key", key.String(), "error", err)
			continue
		}
		tally.Succeeded++
	}

	mpCells, err := p.store.CellsMissingMembranePotential(ctx)
	if err != nil {
		return tally, err
	}
	for _, key := range mpCells {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := p.IngestMembranePotential(ctx, key); err != nil {
			tally.Failed++
			p.log.Errorw("Membrane potential ingest failed", "key", key.String(), "error", err)
			continue
		}
		tally.Succeeded++
	}

	ciCells, err := p.store.CellsMissingCurrentInjection(ctx)
	if err != nil {
		return tally, err
	}
	for _, key := range ciCells {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := p.IngestCurrentInjection(ctx, key); err != nil {
			tally.Failed++
			p.log.Errorw("Current injection ingest failed", "key", key.String(), "error", err)
			continue
		}
		tally.Succeeded++
	}
	return tally, nil
}
