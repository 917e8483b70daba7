package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"strato/internal/domain"
)

// Writer appends audit events. Every write action dispatched by the engine
// and every settings mutation lands here; the rows double as the data behind
// the events collection.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, eventType, collection string, resourceID *int64, actor string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var rid any
	if resourceID != nil {
		rid = *resourceID
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,event_type,collection,resource_id,actor,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, eventType, collection, rid, actor, string(data))
	return err
}

// List returns all audit events, oldest first.
func (w Writer) List(ctx context.Context) ([]domain.Event, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,event_type,collection,resource_id,actor,payload_json FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var rid sql.NullInt64
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.EventType, &e.Collection, &rid, &e.Actor, &payload); err != nil {
			return nil, err
		}
		if rid.Valid {
			v := rid.Int64
			e.ResourceID = &v
		}
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
