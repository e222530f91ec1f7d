// Package store declares the persistence contract the engine runs against.
// internal/repo implements it on SQLite and internal/store/postgres on PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"jobpay/internal/domain"
)

// Store is the read side plus a transaction entry point.
type Store interface {
	GetProfile(ctx context.Context, id int64) (domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	GetContract(ctx context.Context, id int64) (domain.Contract, error)
	// ListContracts returns non-terminated contracts where the profile is a party, ordered by id.
	ListContracts(ctx context.Context, profileID int64) ([]domain.Contract, error)
	// ListUnpaidJobs returns unpaid jobs of in-progress contracts where the profile is a party, ordered by id.
	ListUnpaidJobs(ctx context.Context, profileID int64) ([]domain.Job, error)
	// BestProfession returns domain.ErrNotFound when no job was paid in [start, end].
	BestProfession(ctx context.Context, start, end time.Time) (domain.ProfessionEarnings, error)
	BestClients(ctx context.Context, start, end time.Time, limit int) ([]domain.ClientPayments, error)
	LatestEvents(ctx context.Context, limit int) ([]domain.Event, error)

	// WithinTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise; the error from fn is returned unchanged.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the write side. Methods are only valid inside WithinTx.
type Tx interface {
	// LockJobForClient loads the job together with its contract, restricted to
	// contracts whose client is clientID, and holds the job for update.
	LockJobForClient(ctx context.Context, jobID, clientID int64) (domain.Job, domain.Contract, error)
	// LockProfile reads the profile and holds it for update. Callers locking
	// several profiles take them in ascending id order.
	LockProfile(ctx context.Context, id int64) (domain.Profile, error)
	// Debit reports false when the balance was lower than amount and nothing changed.
	Debit(ctx context.Context, profileID int64, amount decimal.Decimal) (bool, error)
	// Credit returns domain.ErrNotFound when the profile does not exist.
	Credit(ctx context.Context, profileID int64, amount decimal.Decimal) error
	// MarkJobPaid reports false when the job was already paid.
	MarkJobPaid(ctx context.Context, jobID int64, at time.Time) (bool, error)
	SumUnpaidInProgress(ctx context.Context, clientID int64) (decimal.Decimal, error)
	AppendEvent(ctx context.Context, evt domain.Event) error
}

// Seeder inserts fixture rows. Ids are assigned by the caller.
type Seeder interface {
	InsertProfile(ctx context.Context, p domain.Profile) error
	InsertContract(ctx context.Context, c domain.Contract) error
	InsertJob(ctx context.Context, j domain.Job) error
	// Reset deletes every row of every table, events included.
	Reset(ctx context.Context) error
}

// Backend is a store that can also be seeded.
type Backend interface {
	Store
	Seeder
}
