package submission

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Audit actions recorded for state changes.
const (
	ActionStatusChanged = "status_changed"
	ActionForceArchived = "force_archived"
	ActionReopened      = "reopened"
)

// TransitionContext carries the inputs of one transition.
type TransitionContext struct {
	At     time.Time
	Reason string
	Actor  string

	// TransferTicket is the authority reference. When empty on entry to
	// SUBMITTED a local ticket is derived from the submission.
	TransferTicket string
}

// SideEffect mutates a submission as part of entering a state.
type SideEffect func(s *Submission, tc TransitionContext)

// Edge is one allowed (from, to) pair of the lifecycle.
type Edge struct {
	From   Status
	To     Status
	Action string

	// Administrative edges are overrides that bypass the regular lifecycle.
	Administrative bool

	// RequiresReadiness marks edges that need a clean deterministic rule run.
	RequiresReadiness bool

	effects []SideEffect
}

type edgeKey struct {
	from Status
	to   Status
}

func stampSubmitted(s *Submission, tc TransitionContext) {
	at := tc.At
	s.SubmissionDate = &at
	if s.TransferTicket == nil {
		ticket := tc.TransferTicket
		if ticket == "" {
			ticket = localTicket(s, tc.At)
		}
		s.TransferTicket = &ticket
	}
}

func stampArchived(s *Submission, tc TransitionContext) {
	at := tc.At
	s.ArchivedAt = &at
}

// clearFiling reopens a rejected filing for correction in place.
func clearFiling(s *Submission, _ TransitionContext) {
	s.SubmissionDate = nil
	s.TransferTicket = nil
	s.XMLContent = nil
}

func localTicket(s *Submission, at time.Time) string {
	id := strings.ReplaceAll(s.ID, "-", "")
	if len(id) > 10 {
		id = id[:10]
	}
	return fmt.Sprintf("TF-%s-%d-%s-%s", s.Jurisdiction, s.TaxYear, at.UTC().Format("20060102"), strings.ToUpper(id))
}

// transitionTable is the complete lifecycle. Every non-archived state may be
// archived administratively; only archiving from ACCEPTED or REJECTED is a
// regular edge.
var transitionTable = buildTransitionTable()

func buildTransitionTable() map[edgeKey]Edge {
	regular := []Edge{
		{From: StatusDraft, To: StatusAIProcessed, Action: ActionStatusChanged},
		{From: StatusDraft, To: StatusValidated, Action: ActionStatusChanged},
		{From: StatusAIProcessed, To: StatusValidated, Action: ActionStatusChanged},
		{From: StatusValidated, To: StatusSubmitted, Action: ActionStatusChanged, RequiresReadiness: true,
			effects: []SideEffect{stampSubmitted}},
		{From: StatusSubmitted, To: StatusAccepted, Action: ActionStatusChanged},
		{From: StatusSubmitted, To: StatusRejected, Action: ActionStatusChanged},
		{From: StatusAccepted, To: StatusArchived, Action: ActionStatusChanged,
			effects: []SideEffect{stampArchived}},
		{From: StatusRejected, To: StatusDraft, Action: ActionReopened,
			effects: []SideEffect{clearFiling}},
		{From: StatusRejected, To: StatusArchived, Action: ActionStatusChanged,
			effects: []SideEffect{stampArchived}},
	}

	table := make(map[edgeKey]Edge, len(regular)+5)
	for _, e := range regular {
		table[edgeKey{e.From, e.To}] = e
	}
	for _, from := range AllStatuses() {
		if from == StatusArchived {
			continue
		}
		key := edgeKey{from, StatusArchived}
		if _, ok := table[key]; ok {
			continue
		}
		table[key] = Edge{
			From:           from,
			To:             StatusArchived,
			Action:         ActionForceArchived,
			Administrative: true,
			effects:        []SideEffect{stampArchived},
		}
	}
	return table
}

// LookupEdge returns the edge for (from, to).
func LookupEdge(from, to Status) (Edge, bool) {
	e, ok := transitionTable[edgeKey{from, to}]
	return e, ok
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Status) bool {
	_, ok := LookupEdge(from, to)
	return ok
}

// AllowedTargets lists the states reachable from from, sorted by name.
func AllowedTargets(from Status) []Status {
	var out []Status
	for k := range transitionTable {
		if k.from == from {
			out = append(out, k.to)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransitionRecord describes a state change that was applied.
type TransitionRecord struct {
	From           Status
	To             Status
	Action         string
	Administrative bool
	At             time.Time
	Reason         string
	Actor          string
}

// CheckTransition validates the edge without mutating s.
func (s *Submission) CheckTransition(to Status) (Edge, error) {
	if !to.IsValid() {
		return Edge{}, errors.InvalidParam(fmt.Sprintf("unknown target status %q", to))
	}
	edge, ok := LookupEdge(s.Status, to)
	if !ok {
		return Edge{}, errors.InvalidTransition(fmt.Sprintf("transition %s -> %s is not allowed", s.Status, to)).
			WithDetail("submission " + s.ID)
	}
	return edge, nil
}

// ApplyTransition moves s to the target state and runs the edge's side
// effects. On error s is left untouched.
func (s *Submission) ApplyTransition(to Status, tc TransitionContext) (TransitionRecord, error) {
	edge, err := s.CheckTransition(to)
	if err != nil {
		return TransitionRecord{}, err
	}
	if tc.At.IsZero() {
		tc.At = time.Now()
	}
	tc.At = tc.At.UTC()

	from := s.Status
	s.Status = to
	for _, effect := range edge.effects {
		effect(s, tc)
	}
	s.StatusChangedAt = tc.At
	s.UpdatedAt = tc.At

	return TransitionRecord{
		From:           from,
		To:             to,
		Action:         edge.Action,
		Administrative: edge.Administrative,
		At:             tc.At,
		Reason:         tc.Reason,
		Actor:          tc.Actor,
	}, nil
}
