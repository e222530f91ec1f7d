package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jobpay/internal/domain"
)

type sqliteTx struct {
	tx   *sql.Tx
	repo Repo
}

// LockJobForClient needs no explicit lock: the immediate transaction already
// holds the database write lock.
func (t sqliteTx) LockJobForClient(ctx context.Context, jobID, clientID int64) (domain.Job, domain.Contract, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+jobColumns+`,`+contractColumns+` FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.id=? AND c.client_id=?`, jobID, clientID)
	var (
		j                  domain.Job
		c                  domain.Contract
		cents              int64
		paymentDate        sql.NullString
		jCreated, jUpdated string
		cCreated, cUpdated string
	)
	err := row.Scan(&j.ID, &j.Description, &cents, &j.Paid, &paymentDate, &j.ContractID, &jCreated, &jUpdated,
		&c.ID, &c.Terms, &c.Status, &c.ClientID, &c.ContractorID, &cCreated, &cUpdated)
	if err == sql.ErrNoRows {
		return j, c, ErrNotFound
	}
	if err != nil {
		return j, c, err
	}
	j.Price = domain.FromCents(cents)
	if paymentDate.Valid {
		at, err := parseTime(paymentDate.String)
		if err != nil {
			return j, c, err
		}
		j.PaymentDate = &at
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&j.CreatedAt, jCreated}, {&j.UpdatedAt, jUpdated}, {&c.CreatedAt, cCreated}, {&c.UpdatedAt, cUpdated}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return j, c, err
		}
	}
	return j, c, nil
}

func (t sqliteTx) LockProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return scanProfile(t.tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (t sqliteTx) Debit(ctx context.Context, profileID int64, amount decimal.Decimal) (bool, error) {
	cents := domain.MustCents(amount)
	res, err := t.tx.ExecContext(ctx, `UPDATE profiles SET balance_cents = balance_cents - ?, updated_at=?
		WHERE id=? AND balance_cents >= ?`, cents, formatTime(t.repo.now()), profileID, cents)
	if err != nil {
		return false, fmt.Errorf("debit profile %d: %w", profileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t sqliteTx) Credit(ctx context.Context, profileID int64, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE profiles SET balance_cents = balance_cents + ?, updated_at=? WHERE id=?`,
		domain.MustCents(amount), formatTime(t.repo.now()), profileID)
	if err != nil {
		return fmt.Errorf("credit profile %d: %w", profileID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t sqliteTx) MarkJobPaid(ctx context.Context, jobID int64, at time.Time) (bool, error) {
	ts := formatTime(at)
	res, err := t.tx.ExecContext(ctx, `UPDATE jobs SET paid=1, payment_date=?, updated_at=? WHERE id=? AND paid=0`, ts, ts, jobID)
	if err != nil {
		return false, fmt.Errorf("mark job %d paid: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t sqliteTx) SumUnpaidInProgress(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	var cents int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(j.price_cents),0) FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.paid = 0 AND c.client_id = ? AND c.status = ?`, clientID, domain.ContractInProgress).Scan(&cents)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FromCents(cents), nil
}

func (t sqliteTx) AppendEvent(ctx context.Context, evt domain.Event) error {
	if evt.TS.IsZero() {
		evt.TS = t.repo.now()
	}
	return t.repo.Events.Append(ctx, t.tx, evt)
}
