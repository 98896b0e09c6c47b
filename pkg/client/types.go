package client

import "time"

// Submission mirrors the server's submission resource.
type Submission struct {
	ID               string                 `json:"id"`
	TaxYear          int                    `json:"tax_year"`
	FormType         string                 `json:"form_type"`
	Jurisdiction     string                 `json:"jurisdiction"`
	LegalForm        string                 `json:"legal_form"`
	SubjectRef       string                 `json:"subject_ref"`
	Status           string                 `json:"status"`
	FormData         map[string]interface{} `json:"form_data"`
	XMLContent       *string                `json:"xml_content,omitempty"`
	ValidationErrors []Issue                `json:"validation_errors"`
	ConfidenceScore  *int                   `json:"confidence_score,omitempty"`
	SubmissionDate   *time.Time             `json:"submission_date,omitempty"`
	TransferTicket   *string                `json:"transfer_ticket,omitempty"`
	ArchivedAt       *time.Time             `json:"archived_at,omitempty"`
	StatusChangedAt  time.Time              `json:"status_changed_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	CreatedBy        string                 `json:"created_by"`
	Version          int                    `json:"version"`
}

type Issue struct {
	RuleID         string      `json:"rule_id,omitempty"`
	Field          string      `json:"field"`
	Severity       string      `json:"severity"`
	Message        string      `json:"message"`
	CurrentValue   interface{} `json:"current_value,omitempty"`
	Expected       string      `json:"expected,omitempty"`
	Channel        string      `json:"channel"`
	Suggestion     string      `json:"suggestion,omitempty"`
	ActionRequired bool        `json:"action_required,omitempty"`
}

type CreateSubmissionRequest struct {
	TaxYear      int                    `json:"tax_year"`
	FormType     string                 `json:"form_type"`
	Jurisdiction string                 `json:"jurisdiction"`
	LegalForm    string                 `json:"legal_form,omitempty"`
	SubjectRef   string                 `json:"subject_ref"`
	FormData     map[string]interface{} `json:"form_data,omitempty"`
}

// ListOptions filters a submission listing. Zero values are omitted.
type ListOptions struct {
	Status     string
	FormType   string
	SubjectRef string
	TaxYear    int
	Page       int
	PageSize   int
}

type SubmissionPage struct {
	Items      []Submission `json:"items"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// UpdateSubmissionRequest is a partial form data correction. A nil value
// removes the key.
type UpdateSubmissionRequest struct {
	FormData map[string]interface{} `json:"form_data"`
	Reason   string                 `json:"reason,omitempty"`
}

type TransitionRequest struct {
	Target         string `json:"target"`
	Reason         string `json:"reason,omitempty"`
	TransferTicket string `json:"transfer_ticket,omitempty"`
}

type TransitionResult struct {
	Submission *Submission `json:"submission"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Action     string      `json:"action"`
	At         time.Time   `json:"at"`
}

type BatchTransitionRequest struct {
	IDs    []string `json:"ids"`
	Target string   `json:"target"`
	Reason string   `json:"reason,omitempty"`
}

// ErrorPayload is the structured error body, also embedded in batch items.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type BatchItemResult struct {
	ID         string        `json:"id"`
	Success    bool          `json:"success"`
	FromStatus string        `json:"from_status,omitempty"`
	ToStatus   string        `json:"to_status,omitempty"`
	Error      *ErrorPayload `json:"error,omitempty"`
}

type BatchTransitionResult struct {
	BatchID      string            `json:"batch_id"`
	Target       string            `json:"target"`
	SuccessCount int               `json:"success_count"`
	FailCount    int               `json:"fail_count"`
	Results      []BatchItemResult `json:"results"`
}

type DocumentResult struct {
	Submission      *Submission `json:"submission"`
	Source          string      `json:"source"`
	TemplateID      string      `json:"template_id,omitempty"`
	Regenerated     bool        `json:"regenerated"`
	Bytes           int         `json:"bytes"`
	ArchiveLocation string      `json:"archive_location,omitempty"`
}

type ValidationResult struct {
	SubmissionID     string    `json:"submission_id"`
	Score            int       `json:"score"`
	Issues           []Issue   `json:"issues"`
	AdvisoryIssues   []Issue   `json:"advisory_issues"`
	IsReadyForFiling bool      `json:"is_ready_for_filing"`
	PriorTaxYear     int       `json:"prior_tax_year,omitempty"`
	AdvisoryFailed   bool      `json:"advisory_failed,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

type AuditEvent struct {
	ID          string                 `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"`
	Summary     string                 `json:"summary"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Value   int64  `json:"value"`
	Message string `json:"message"`
}

type HealthReport struct {
	Overall     string        `json:"overall"`
	Checks      []HealthCheck `json:"checks"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type Deadline struct {
	Jurisdiction string    `json:"jurisdiction"`
	FormType     string    `json:"form_type"`
	TaxYear      int       `json:"tax_year"`
	DueDate      time.Time `json:"due_date"`
	Recurring    bool      `json:"recurring"`
	DaysUntil    int       `json:"days_until"`
	State        string    `json:"state"`
	Description  string    `json:"description,omitempty"`
}
