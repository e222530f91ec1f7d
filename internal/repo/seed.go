package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobpay/internal/domain"
)

func (r Repo) stamps(created, updated time.Time) (string, string) {
	if created.IsZero() {
		created = r.now()
	}
	if updated.IsZero() {
		updated = created
	}
	return formatTime(created), formatTime(updated)
}

func (r Repo) InsertProfile(ctx context.Context, p domain.Profile) error {
	cents, ok := domain.ToCents(p.Balance)
	if !ok {
		return fmt.Errorf("profile %d: balance %s has more than two decimals", p.ID, p.Balance)
	}
	created, updated := r.stamps(p.CreatedAt, p.UpdatedAt)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,first_name,last_name,profession,balance_cents,type,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.FirstName, p.LastName, p.Profession, cents, p.Type, created, updated)
	return err
}

func (r Repo) InsertContract(ctx context.Context, c domain.Contract) error {
	created, updated := r.stamps(c.CreatedAt, c.UpdatedAt)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO contracts(id,terms,status,client_id,contractor_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Terms, c.Status, c.ClientID, c.ContractorID, created, updated)
	return err
}

func (r Repo) InsertJob(ctx context.Context, j domain.Job) error {
	cents, ok := domain.ToCents(j.Price)
	if !ok {
		return fmt.Errorf("job %d: price %s has more than two decimals", j.ID, j.Price)
	}
	created, updated := r.stamps(j.CreatedAt, j.UpdatedAt)
	var paymentDate sql.NullString
	if j.PaymentDate != nil {
		paymentDate = sql.NullString{String: formatTime(*j.PaymentDate), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO jobs(id,description,price_cents,paid,payment_date,contract_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		j.ID, j.Description, cents, j.Paid, paymentDate, j.ContractID, created, updated)
	return err
}

func (r Repo) Reset(ctx context.Context) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"events", "jobs", "contracts", "profiles"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}
