package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jobpay/internal/domain"
)

const (
	TypeJobPaid          = "job.paid"
	TypeBalanceDeposited = "balance.deposited"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp stored as text.
const TimeLayout = time.RFC3339

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// New builds an event with its payload encoded as JSON.
func New(evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return domain.Event{
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}, nil
}

// Append inserts evt inside tx. A zero TS is stamped with the writer clock.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.Event) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := evt.TS
	if ts.IsZero() {
		ts = w.Now()
	}
	payload := evt.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts.UTC().Format(TimeLayout), evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, payload)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
