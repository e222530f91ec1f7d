package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobpay/internal/domain"
	"jobpay/internal/events"
	"jobpay/internal/store"
)

// Repo is the SQLite store.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = domain.ErrNotFound

var (
	_ store.Store  = Repo{}
	_ store.Seeder = Repo{}
)

func New(db *sql.DB) Repo {
	return Repo{DB: db, Events: events.Writer{Now: time.Now}, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) Close() error {
	return r.DB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `id,first_name,last_name,profession,balance_cents,type,created_at,updated_at`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		p                domain.Profile
		cents            int64
		created, updated string
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Profession, &cents, &p.Type, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Balance = domain.FromCents(cents)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(updated)
	return p, err
}

const contractColumns = `c.id,c.terms,c.status,c.client_id,c.contractor_id,c.created_at,c.updated_at`

func scanContract(row rowScanner) (domain.Contract, error) {
	var (
		c                domain.Contract
		created, updated string
	)
	err := row.Scan(&c.ID, &c.Terms, &c.Status, &c.ClientID, &c.ContractorID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTime(updated)
	return c, err
}

const jobColumns = `j.id,j.description,j.price_cents,j.paid,j.payment_date,j.contract_id,j.created_at,j.updated_at`

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j                domain.Job
		cents            int64
		paymentDate      sql.NullString
		created, updated string
	)
	err := row.Scan(&j.ID, &j.Description, &cents, &j.Paid, &paymentDate, &j.ContractID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	j.Price = domain.FromCents(cents)
	if paymentDate.Valid {
		at, err := parseTime(paymentDate.String)
		if err != nil {
			return j, err
		}
		j.PaymentDate = &at
	}
	if j.CreatedAt, err = parseTime(created); err != nil {
		return j, err
	}
	j.UpdatedAt, err = parseTime(updated)
	return j, err
}

func (r Repo) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetContract(ctx context.Context, id int64) (domain.Contract, error) {
	return scanContract(r.DB.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts c WHERE c.id=?`, id))
}

func (r Repo) ListContracts(ctx context.Context, profileID int64) ([]domain.Contract, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts c
		WHERE (c.client_id=? OR c.contractor_id=?) AND c.status != ?
		ORDER BY c.id`, profileID, profileID, domain.ContractTerminated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) ListUnpaidJobs(ctx context.Context, profileID int64) ([]domain.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.paid = 0 AND c.status = ? AND (c.client_id=? OR c.contractor_id=?)
		ORDER BY j.id`, domain.ContractInProgress, profileID, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// WithinTx runs fn in an immediate transaction; the DSN sets _txlock=immediate
// so the write lock is taken at BEGIN and concurrent payers queue on busy_timeout.
func (r Repo) WithinTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(sqliteTx{tx: tx, repo: r}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(events.TimeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(events.TimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
