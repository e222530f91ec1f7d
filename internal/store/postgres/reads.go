package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"jobpay/internal/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `id,first_name,last_name,profession,balance_cents,type,created_at,updated_at`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		p     domain.Profile
		cents int64
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Profession, &cents, &p.Type, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrNotFound
	}
	p.Balance = domain.FromCents(cents)
	return p, err
}

const contractColumns = `c.id,c.terms,c.status,c.client_id,c.contractor_id,c.created_at,c.updated_at`

func scanContract(row rowScanner) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(&c.ID, &c.Terms, &c.Status, &c.ClientID, &c.ContractorID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, domain.ErrNotFound
	}
	return c, err
}

const jobColumns = `j.id,j.description,j.price_cents,j.paid,j.payment_date,j.contract_id,j.created_at,j.updated_at`

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j     domain.Job
		cents int64
	)
	err := row.Scan(&j.ID, &j.Description, &cents, &j.Paid, &j.PaymentDate, &j.ContractID, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return j, domain.ErrNotFound
	}
	j.Price = domain.FromCents(cents)
	return j, err
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	res := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return scanProfile(s.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProfile)
}

func (s *Store) GetContract(ctx context.Context, id int64) (domain.Contract, error) {
	return scanContract(s.Pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts c WHERE c.id=$1`, id))
}

func (s *Store) ListContracts(ctx context.Context, profileID int64) ([]domain.Contract, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+contractColumns+` FROM contracts c
		WHERE (c.client_id=$1 OR c.contractor_id=$1) AND c.status <> $2
		ORDER BY c.id`, profileID, domain.ContractTerminated)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanContract)
}

func (s *Store) ListUnpaidJobs(ctx context.Context, profileID int64) ([]domain.Job, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE NOT j.paid AND c.status = $2 AND (c.client_id=$1 OR c.contractor_id=$1)
		ORDER BY j.id`, profileID, domain.ContractInProgress)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanJob)
}

func (s *Store) BestProfession(ctx context.Context, start, end time.Time) (domain.ProfessionEarnings, error) {
	var (
		res   domain.ProfessionEarnings
		cents int64
	)
	err := s.Pool.QueryRow(ctx, `SELECT p.profession, SUM(j.price_cents)::bigint AS total FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.contractor_id
		WHERE j.paid AND j.payment_date BETWEEN $1 AND $2
		GROUP BY p.profession
		ORDER BY total DESC, p.profession ASC
		LIMIT 1`, start, end).Scan(&res.Profession, &cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, domain.ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.TotalEarnings = domain.FromCents(cents)
	return res, nil
}

func (s *Store) BestClients(ctx context.Context, start, end time.Time, limit int) ([]domain.ClientPayments, error) {
	rows, err := s.Pool.Query(ctx, `SELECT p.id, p.first_name || ' ' || p.last_name, SUM(j.price_cents)::bigint AS paid FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.paid AND j.payment_date BETWEEN $1 AND $2
		GROUP BY p.id, p.first_name, p.last_name
		ORDER BY paid DESC, p.id ASC
		LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.ClientPayments, error) {
		var (
			c     domain.ClientPayments
			cents int64
		)
		err := row.Scan(&c.ID, &c.FullName, &cents)
		c.Paid = domain.FromCents(cents)
		return c, err
	})
}

func (s *Store) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json::text
		FROM events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.Event, error) {
		var e domain.Event
		err := row.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload)
		e.TS = e.TS.UTC()
		return e, err
	})
}
