package submission

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

const (
	minTaxYear = 1990
	maxTaxYear = 2100
)

// Submission is one tax-form filing for a subject, form type and tax year.
type Submission struct {
	ID               string     `json:"id"`
	TaxYear          int        `json:"tax_year"`
	FormType         string     `json:"form_type"`
	Jurisdiction     string     `json:"jurisdiction"`
	LegalForm        string     `json:"legal_form"`
	SubjectRef       string     `json:"subject_ref"`
	Status           Status     `json:"status"`
	FormData         FormData   `json:"form_data"`
	XMLContent       *string    `json:"xml_content,omitempty"`
	ValidationErrors []Issue    `json:"validation_errors"`
	ConfidenceScore  *int       `json:"confidence_score,omitempty"`
	SubmissionDate   *time.Time `json:"submission_date,omitempty"`
	TransferTicket   *string    `json:"transfer_ticket,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	StatusChangedAt  time.Time  `json:"status_changed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CreatedBy        string     `json:"created_by"`
	Version          int        `json:"version"`
}

// CreateParams carries the caller-supplied fields of a new Submission.
type CreateParams struct {
	TaxYear      int                    `json:"tax_year"`
	FormType     string                 `json:"form_type"`
	Jurisdiction string                 `json:"jurisdiction"`
	LegalForm    string                 `json:"legal_form"`
	SubjectRef   string                 `json:"subject_ref"`
	FormData     map[string]interface{} `json:"form_data"`
	CreatedBy    string                 `json:"-"`
}

// NewSubmission validates p and returns a DRAFT submission at version 1.
func NewSubmission(p CreateParams, now time.Time) (*Submission, error) {
	formType := strings.ToUpper(strings.TrimSpace(p.FormType))
	if formType == "" {
		return nil, errors.InvalidParam("form type is required")
	}
	if p.TaxYear < minTaxYear || p.TaxYear > maxTaxYear {
		return nil, errors.InvalidParam("tax year out of range").
			WithDetail(fmt.Sprintf("got %d, want %d..%d", p.TaxYear, minTaxYear, maxTaxYear))
	}
	if strings.TrimSpace(p.Jurisdiction) == "" {
		return nil, errors.InvalidParam("jurisdiction is required")
	}
	if strings.TrimSpace(p.SubjectRef) == "" {
		return nil, errors.InvalidParam("subject reference is required")
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "system"
	}

	now = now.UTC()
	return &Submission{
		ID:               string(common.NewID()),
		TaxYear:          p.TaxYear,
		FormType:         formType,
		Jurisdiction:     strings.ToUpper(strings.TrimSpace(p.Jurisdiction)),
		LegalForm:        strings.TrimSpace(p.LegalForm),
		SubjectRef:       strings.TrimSpace(p.SubjectRef),
		Status:           StatusDraft,
		FormData:         FormData(p.FormData).Clone(),
		ValidationErrors: []Issue{},
		StatusChangedAt:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        p.CreatedBy,
		Version:          1,
	}, nil
}

// Clone returns a deep copy so callers can mutate without touching a cached or
// stored instance.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.FormData = s.FormData.Clone()
	c.ValidationErrors = append([]Issue(nil), s.ValidationErrors...)
	if c.ValidationErrors == nil {
		c.ValidationErrors = []Issue{}
	}
	c.XMLContent = cloneString(s.XMLContent)
	c.TransferTicket = cloneString(s.TransferTicket)
	c.SubmissionDate = cloneTime(s.SubmissionDate)
	c.ArchivedAt = cloneTime(s.ArchivedAt)
	if s.ConfidenceScore != nil {
		v := *s.ConfidenceScore
		c.ConfidenceScore = &v
	}
	return &c
}

// SetDocument stores generated XML. Only the document generator calls it.
func (s *Submission) SetDocument(xml string, now time.Time) {
	s.XMLContent = &xml
	s.UpdatedAt = now.UTC()
}

// RecordValidation replaces the persisted findings with the deterministic
// subset of issues and stores the score clamped to 0..100.
func (s *Submission) RecordValidation(issues []Issue, score int, now time.Time) {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.ValidationErrors = Deterministic(issues)
	s.ConfidenceScore = &score
	s.UpdatedAt = now.UTC()
}

// UpdateFormData overlays patch onto the form data. A nil value removes the
// key. The generated document, findings and score describe the old data and
// are cleared; the status is left alone.
func (s *Submission) UpdateFormData(patch map[string]interface{}, now time.Time) ([]string, error) {
	if len(patch) == 0 {
		return nil, errors.InvalidParam("form data patch is empty")
	}
	if !s.Status.Editable() {
		return nil, errors.InvalidTransition(fmt.Sprintf("form data cannot change in status %s", s.Status)).
			WithDetail("reopen a rejected submission before correcting it")
	}
	data := s.FormData.Clone()
	if data == nil {
		data = FormData{}
	}
	keys := make([]string, 0, len(patch))
	for k, v := range patch {
		if strings.TrimSpace(k) == "" {
			return nil, errors.InvalidParam("form data key must not be empty")
		}
		if v == nil {
			delete(data, k)
		} else {
			data[k] = v
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.FormData = data
	s.XMLContent = nil
	s.ValidationErrors = []Issue{}
	s.ConfidenceScore = nil
	s.UpdatedAt = now.UTC()
	return keys, nil
}

// HasValidationErrors reports whether persisted findings exist.
func (s *Submission) HasValidationErrors() bool {
	return len(s.ValidationErrors) > 0
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
