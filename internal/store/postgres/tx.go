package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"jobpay/internal/domain"
)

type pgTx struct {
	tx  pgx.Tx
	now func() time.Time
}

// LockJobForClient takes a row lock on the job only; the contract row stays shared.
func (t pgTx) LockJobForClient(ctx context.Context, jobID, clientID int64) (domain.Job, domain.Contract, error) {
	var (
		j     domain.Job
		c     domain.Contract
		cents int64
	)
	err := t.tx.QueryRow(ctx, `SELECT `+jobColumns+`,`+contractColumns+` FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.id=$1 AND c.client_id=$2
		FOR UPDATE OF j`, jobID, clientID).Scan(
		&j.ID, &j.Description, &cents, &j.Paid, &j.PaymentDate, &j.ContractID, &j.CreatedAt, &j.UpdatedAt,
		&c.ID, &c.Terms, &c.Status, &c.ClientID, &c.ContractorID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return j, c, domain.ErrNotFound
	}
	j.Price = domain.FromCents(cents)
	return j, c, err
}

func (t pgTx) LockProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return scanProfile(t.tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1 FOR UPDATE`, id))
}

func (t pgTx) Debit(ctx context.Context, profileID int64, amount decimal.Decimal) (bool, error) {
	cents := domain.MustCents(amount)
	tag, err := t.tx.Exec(ctx, `UPDATE profiles SET balance_cents = balance_cents - $1, updated_at=$2
		WHERE id=$3 AND balance_cents >= $1`, cents, t.now().UTC(), profileID)
	if err != nil {
		return false, fmt.Errorf("debit profile %d: %w", profileID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t pgTx) Credit(ctx context.Context, profileID int64, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE profiles SET balance_cents = balance_cents + $1, updated_at=$2 WHERE id=$3`,
		domain.MustCents(amount), t.now().UTC(), profileID)
	if err != nil {
		return fmt.Errorf("credit profile %d: %w", profileID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t pgTx) MarkJobPaid(ctx context.Context, jobID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE jobs SET paid=true, payment_date=$1, updated_at=$1 WHERE id=$2 AND NOT paid`, at.UTC(), jobID)
	if err != nil {
		return false, fmt.Errorf("mark job %d paid: %w", jobID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t pgTx) SumUnpaidInProgress(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	var cents int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(j.price_cents),0)::bigint FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE NOT j.paid AND c.client_id=$1 AND c.status=$2`, clientID, domain.ContractInProgress).Scan(&cents)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FromCents(cents), nil
}

func (t pgTx) AppendEvent(ctx context.Context, evt domain.Event) error {
	ts := evt.TS
	if ts.IsZero() {
		ts = t.now()
	}
	payload := evt.Payload
	if payload == "" {
		payload = "{}"
	}
	var entityID *string
	if evt.EntityID != "" {
		entityID = &evt.EntityID
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES ($1,$2,$3,$4,$5,$6::jsonb)`,
		ts.UTC(), evt.Type, evt.EntityKind, entityID, evt.ActorID, payload)
	return err
}
