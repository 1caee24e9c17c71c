package domain

import "context"

// Store is the relational collaborator the ingestion core writes to. Inserts
// reject duplicates with ErrDuplicateKey; single-row fetches report missing
// rows with ErrNotFound. The key-source queries drive batch ingestion:
// "process every key for which no row yet exists".
type Store interface {
	// Manual registration surface (fixtures and external tooling).
	InsertSession(ctx context.Context, s Session) error
	InsertBrainLocation(ctx context.Context, l BrainLocation) error
	InsertWholeCellDevice(ctx context.Context, d WholeCellDevice) error
	InsertCell(ctx context.Context, c Cell) error

	FetchSession(ctx context.Context, key SessionKey) (Session, error)
	FetchCell(ctx context.Context, key CellKey) (Cell, error)
	FetchBrainLocation(ctx context.Context, key BrainLocationKey) (BrainLocation, error)
	FetchWholeCellDevice(ctx context.Context, name string) (WholeCellDevice, error)

	InsertLickTrace(ctx context.Context, row LickTrace) error
	InsertMembranePotential(ctx context.Context, row MembranePotential) error
	InsertCurrentInjection(ctx context.Context, row CurrentInjection) error

	FetchLickTrace(ctx context.Context, key SessionKey) (LickTrace, error)
	FetchMembranePotential(ctx context.Context, key CellKey) (MembranePotential, error)
	FetchCurrentInjection(ctx context.Context, key CellKey) (CurrentInjection, error)

	SessionsMissingLickTrace(ctx context.Context) ([]SessionKey, error)
	CellsMissingMembranePotential(ctx context.Context) ([]CellKey, error)
	CellsMissingCurrentInjection(ctx context.Context) ([]CellKey, error)

	Close() error
}
