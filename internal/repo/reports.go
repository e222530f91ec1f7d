package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jobpay/internal/domain"
)

func (r Repo) BestProfession(ctx context.Context, start, end time.Time) (domain.ProfessionEarnings, error) {
	var (
		res   domain.ProfessionEarnings
		cents int64
	)
	err := r.DB.QueryRowContext(ctx, `SELECT p.profession, SUM(j.price_cents) AS total FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.contractor_id
		WHERE j.paid = 1 AND j.payment_date BETWEEN ? AND ?
		GROUP BY p.profession
		ORDER BY total DESC, p.profession ASC
		LIMIT 1`, formatTime(start), formatTime(end)).Scan(&res.Profession, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.TotalEarnings = domain.FromCents(cents)
	return res, nil
}

func (r Repo) BestClients(ctx context.Context, start, end time.Time, limit int) ([]domain.ClientPayments, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id, p.first_name, p.last_name, SUM(j.price_cents) AS paid FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.paid = 1 AND j.payment_date BETWEEN ? AND ?
		GROUP BY p.id, p.first_name, p.last_name
		ORDER BY paid DESC, p.id ASC
		LIMIT ?`, formatTime(start), formatTime(end), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ClientPayments{}
	for rows.Next() {
		var (
			row         domain.ClientPayments
			first, last string
			cents       int64
		)
		if err := rows.Scan(&row.ID, &first, &last, &cents); err != nil {
			return nil, err
		}
		row.FullName = first + " " + last
		row.Paid = domain.FromCents(cents)
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var (
			e  domain.Event
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
