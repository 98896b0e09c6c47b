// Package audit models the append-only event trail. Events are never updated
// or deleted; the repository exposes no operation that could do so.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// Entity types.
const (
	EntitySubmission = "submission"
	EntityBatch      = "submission_batch"
)

// Actions not tied to a single state edge.
const (
	ActionCreated             = "created"
	ActionTransitionFailed    = "transition_failed"
	ActionBatchTransition     = "batch_transition"
	ActionDocumentGenerated   = "document_generated"
	ActionDocumentRegenerated = "document_regenerated"
	ActionValidated           = "validated"
	ActionFormDataUpdated     = "form_data_updated"
)

// Event is one audit trail entry.
type Event struct {
	ID          string                 `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"`
	Summary     string                 `json:"summary"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent builds an event stamped at now. An empty actor is recorded as
// "system".
func NewEvent(entityType, entityID, action, summary, actor string, now time.Time) *Event {
	if strings.TrimSpace(actor) == "" {
		actor = "system"
	}
	return &Event{
		ID:          string(common.NewID()),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Summary:     summary,
		PerformedBy: actor,
		PerformedAt: now.UTC(),
		Metadata:    map[string]interface{}{},
	}
}

// With sets a metadata key and returns the event for chaining.
func (e *Event) With(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// Validate checks the mandatory fields.
func (e *Event) Validate() error {
	switch {
	case e == nil:
		return errors.InvalidParam("audit event is nil")
	case e.EntityType == "" || e.EntityID == "":
		return errors.InvalidParam("audit event requires entity type and id")
	case e.Action == "":
		return errors.InvalidParam("audit event requires an action")
	case e.PerformedAt.IsZero():
		return errors.InvalidParam("audit event requires a timestamp")
	}
	return nil
}

// Repository appends and reads audit events.
type Repository interface {
	Append(ctx context.Context, e *Event) error

	// ListByEntity returns events oldest first.
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Event, error)

	// CountTransitionsSince counts state changes of entityType into status
	// recorded at or after since. A transition event carries the target
	// state under the "to" metadata key.
	CountTransitionsSince(ctx context.Context, entityType, status string, since time.Time) (int64, error)
}
