package submission

import (
	"fmt"
	"strings"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Status is the lifecycle state of a Submission.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusAIProcessed Status = "AI_PROCESSED"
	StatusValidated   Status = "VALIDATED"
	StatusSubmitted   Status = "SUBMITTED"
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusArchived    Status = "ARCHIVED"
)

// AllStatuses lists the seven states in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusAIProcessed, StatusValidated, StatusSubmitted,
		StatusAccepted, StatusRejected, StatusArchived,
	}
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the seven defined states.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusAIProcessed, StatusValidated, StatusSubmitted,
		StatusAccepted, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// IsTerminal reports whether s ends the regular lifecycle. REJECTED is
// terminal for the authority exchange even though it may be reopened.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusArchived
}

// IsFiled reports whether a submission in s counts as filed for deadline
// purposes.
func (s Status) IsFiled() bool {
	return s == StatusSubmitted || s == StatusAccepted
}

// ParseStatus accepts any casing and surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", errors.InvalidParam(fmt.Sprintf("unknown submission status %q", raw))
	}
	return s, nil
}

// Editable reports whether form data may still change. Once a submission is
// filed its content is frozen; a rejected one must be reopened first.
func (s Status) Editable() bool {
	switch s {
	case StatusDraft, StatusAIProcessed, StatusValidated:
		return true
	}
	return false
}
