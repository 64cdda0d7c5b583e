package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TypeRunCompleted = "sync.run.completed"
	TypeTenantFailed = "sync.tenant.failed"
)

// Writer appends rows to the operational sync log.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, groupID, runID string, payload EventPayload) error {
	if evtType == "" {
		return errors.New("event type required")
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := w.DB.ExecContext(ctx, `INSERT INTO sync_log(ts,type,group_id,run_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(groupID), nullable(runID), string(data)); err != nil {
		return fmt.Errorf("append %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
