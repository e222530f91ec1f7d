package postgres

import (
	"context"
	"fmt"
	"time"

	"jobpay/internal/domain"
)

func (s *Store) stamps(created, updated time.Time) (time.Time, time.Time) {
	if created.IsZero() {
		created = s.now()
	}
	if updated.IsZero() {
		updated = created
	}
	return created.UTC(), updated.UTC()
}

func (s *Store) InsertProfile(ctx context.Context, p domain.Profile) error {
	cents, ok := domain.ToCents(p.Balance)
	if !ok {
		return fmt.Errorf("profile %d: balance %s has more than two decimals", p.ID, p.Balance)
	}
	created, updated := s.stamps(p.CreatedAt, p.UpdatedAt)
	_, err := s.Pool.Exec(ctx, `INSERT INTO profiles(id,first_name,last_name,profession,balance_cents,type,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.FirstName, p.LastName, p.Profession, cents, p.Type, created, updated)
	if err != nil {
		return err
	}
	return s.syncSequence(ctx, "profiles")
}

func (s *Store) InsertContract(ctx context.Context, c domain.Contract) error {
	created, updated := s.stamps(c.CreatedAt, c.UpdatedAt)
	_, err := s.Pool.Exec(ctx, `INSERT INTO contracts(id,terms,status,client_id,contractor_id,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Terms, c.Status, c.ClientID, c.ContractorID, created, updated)
	if err != nil {
		return err
	}
	return s.syncSequence(ctx, "contracts")
}

func (s *Store) InsertJob(ctx context.Context, j domain.Job) error {
	cents, ok := domain.ToCents(j.Price)
	if !ok {
		return fmt.Errorf("job %d: price %s has more than two decimals", j.ID, j.Price)
	}
	created, updated := s.stamps(j.CreatedAt, j.UpdatedAt)
	_, err := s.Pool.Exec(ctx, `INSERT INTO jobs(id,description,price_cents,paid,payment_date,contract_id,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.Description, cents, j.Paid, j.PaymentDate, j.ContractID, created, updated)
	if err != nil {
		return err
	}
	return s.syncSequence(ctx, "jobs")
}

// syncSequence moves the serial past explicitly inserted ids.
func (s *Store) syncSequence(ctx context.Context, table string) error {
	_, err := s.Pool.Exec(ctx, fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s','id'), (SELECT MAX(id) FROM %[1]s))`, table))
	return err
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `TRUNCATE events, jobs, contracts, profiles RESTART IDENTITY CASCADE`)
	return err
}
