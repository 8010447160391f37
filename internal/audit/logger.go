package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Audited actions.
const (
	ActionCredentialStored  = "credential.stored"
	ActionCredentialRemoved = "credential.removed"
	ActionWebFormCreated    = "webform.created"
)

// Event is an audit record of a change to stored credentials or webhooks.
// It never carries token material.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"userId,omitempty"`
	OrgID     string    `json:"orgId,omitempty"`
	Target    string    `json:"target,omitempty"`  // object name or form token hash
	Details   string    `json:"details,omitempty"` // e.g. logout reason
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu          sync.Mutex
	auditLogger = zerolog.New(os.Stdout)
)

// SetOutput redirects audit events, which go to stdout by default.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	auditLogger = zerolog.New(w)
}

// Log records an audit event. err marks the event as failed.
func Log(ctx context.Context, event Event, err error) {
	event.Timestamp = time.Now().UTC()
	event.Success = err == nil
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		log.Ctx(ctx).Error().Err(marshalErr).Str("action", event.Action).Msg("Failed to marshal audit event to JSON")
		return
	}

	mu.Lock()
	defer mu.Unlock()
	auditLogger.Log().RawJSON("audit_event", entry).Msg("")
}
