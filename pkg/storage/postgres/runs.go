package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"iconload/pkg/domain"
	"iconload/pkg/storage"

	"github.com/doug-martin/goqu/v9"
)

const (
	runsTable       = "runs"
	runEntriesTable = "run_entries"

	// DefaultPageSize applies when Runs is called with a zero limit.
	DefaultPageSize = 20
)

// StoreRun inserts the run and its entries. Outside a transaction it opens
// one so a run is never stored without its entries.
func (p *PgSQL) StoreRun(ctx context.Context, run domain.Run) (*domain.Run, error) {
	if _, inTx := p.DB.(*sql.Tx); !inTx {
		var stored *domain.Run
		err := p.WithTx(ctx, func(tx storage.AllStorage) error {
			var err error
			stored, err = tx.StoreRun(ctx, run)

			return err
		})

		return stored, err
	}

	var row PgRun
	if err := row.FromDomain(run); err != nil {
		return nil, err
	}

	var result []PgRun
	if err := p.Builder.Insert(runsTable).
		Rows(row).
		Returning(&PgRun{}).
		Executor().ScanStructsContext(ctx, &result); err != nil {
		return nil, fmt.Errorf("could not store run into pg: %w", err)
	}
	if len(result) != 1 {
		return nil, fmt.Errorf("could not store run into pg: %d rows returned", len(result))
	}

	if len(run.Entries) > 0 {
		if _, err := p.Builder.Insert(runEntriesTable).
			Rows(runEntriesToPg(run.ID, run.Entries)).
			Executor().ExecContext(ctx); err != nil {
			return nil, fmt.Errorf("could not store run entries into pg: %w", err)
		}
	}

	stored, err := result[0].ToDomain()
	if err != nil {
		return nil, err
	}
	stored.Entries = run.Entries

	return stored, nil
}

// RunByID returns the run with its entries sorted by name.
func (p *PgSQL) RunByID(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	var row PgRun
	found, err := p.Builder.From(runsTable).
		Where(goqu.I("id").Eq(string(id))).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not fetch run by id: %w", err)
	}
	if !found {
		return nil, nil
	}

	run, err := row.ToDomain()
	if err != nil {
		return nil, err
	}

	var entries []PgRunEntry
	if err := p.Builder.From(runEntriesTable).
		Where(goqu.I("run_id").Eq(string(id))).
		Order(goqu.I("name").Asc()).
		Executor().ScanStructsContext(ctx, &entries); err != nil {
		return nil, fmt.Errorf("could not fetch run entries: %w", err)
	}
	for _, e := range entries {
		run.Entries = append(run.Entries, e.ToDomain())
	}

	return run, nil
}

// Runs pages through the history by start time, newest first.
func (p *PgSQL) Runs(ctx context.Context, cursor time.Time, limit uint) (storage.Runs, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}

	ds := p.Builder.From(runsTable)
	if !cursor.IsZero() {
		ds = ds.Where(goqu.I("started_at").Lt(cursor))
	}

	// one extra row tells whether there is a next page
	var rows []PgRun
	if err := ds.Order(goqu.I("started_at").Desc(), goqu.I("id").Desc()).
		Limit(limit+1).
		Executor().ScanStructsContext(ctx, &rows); err != nil {
		return storage.Runs{}, fmt.Errorf("could not fetch runs from pg: %w", err)
	}

	var nextCursor *time.Time
	if uint(len(rows)) > limit {
		rows = rows[:limit]
		nextCursor = &rows[len(rows)-1].StartedAt
	}

	runs, err := pgRunsToDomain(rows)
	if err != nil {
		return storage.Runs{}, err
	}

	return storage.Runs{Runs: runs, NextCursor: nextCursor}, nil
}

var _ storage.Storage = (*PgSQL)(nil)
