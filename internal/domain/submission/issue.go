package submission

// Severity grades a plausibility finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity prevents filing.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Rank orders severities from info (0) to critical (3); unknown values rank
// below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// IsValid reports whether s is a defined severity.
func (s Severity) IsValid() bool { return s.Rank() >= 0 }

// Channel separates locally computed findings from externally produced advice.
type Channel string

const (
	ChannelDeterministic Channel = "deterministic"
	ChannelAdvisory      Channel = "advisory"
)

// Issue is one finding attached to a submission.
type Issue struct {
	RuleID       string      `json:"rule_id,omitempty"`
	Field        string      `json:"field"`
	Severity     Severity    `json:"severity"`
	Message      string      `json:"message"`
	CurrentValue interface{} `json:"current_value,omitempty"`
	Expected     string      `json:"expected,omitempty"`
	Channel      Channel     `json:"channel"`
	Suggestion   string      `json:"suggestion,omitempty"`

	// ActionRequired marks a sub-error finding that still has to be resolved
	// before filing.
	ActionRequired bool `json:"action_required,omitempty"`
}

// Blocking reports whether the issue prevents filing. Advisory issues never
// block.
func (i Issue) Blocking() bool {
	return i.Channel != ChannelAdvisory && i.Severity.Blocking()
}

// PreventsFiling reports whether the issue keeps a submission from being
// filed: deterministic and either blocking or flagged as action required.
func (i Issue) PreventsFiling() bool {
	if i.Channel == ChannelAdvisory {
		return false
	}
	return i.Severity.Blocking() || i.ActionRequired
}

// ReadyForFiling reports whether no issue prevents filing.
func ReadyForFiling(issues []Issue) bool {
	for _, i := range issues {
		if i.PreventsFiling() {
			return false
		}
	}
	return true
}

// HasBlocking reports whether any issue in the list blocks filing.
func HasBlocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Blocking() {
			return true
		}
	}
	return false
}

// Deterministic filters out advisory issues.
func Deterministic(issues []Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, i := range issues {
		if i.Channel != ChannelAdvisory {
			out = append(out, i)
		}
	}
	return out
}
