package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/certificate"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// AuditStore
// ─────────────────────────────────────────────────────────────────────────────

// AuditStore is an in-memory audit.Repository.
type AuditStore struct {
	mu     sync.Mutex
	events []*audit.Event

	// FailAppend makes standalone Append calls fail.
	FailAppend error
}

func NewAuditStore() *AuditStore { return &AuditStore{} }

func (a *AuditStore) Append(_ context.Context, e *audit.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailAppend != nil {
		return a.FailAppend
	}
	a.append(e)
	return nil
}

func (a *AuditStore) append(e *audit.Event) {
	c := *e
	a.events = append(a.events, &c)
}

func (a *AuditStore) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]*audit.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*audit.Event
	for _, e := range a.events {
		if e.EntityType == entityType && e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *AuditStore) CountTransitionsSince(_ context.Context, entityType, status string, since time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for _, e := range a.events {
		if e.EntityType != entityType || e.PerformedAt.Before(since) {
			continue
		}
		if to, ok := e.Metadata["to"].(string); ok && to == status {
			n++
		}
	}
	return n, nil
}

// All returns every event in append order.
func (a *AuditStore) All() []*audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*audit.Event(nil), a.events...)
}

// ByAction returns the events with action.
func (a *AuditStore) ByAction(action string) []*audit.Event {
	var out []*audit.Event
	for _, e := range a.All() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// SubmissionStore
// ─────────────────────────────────────────────────────────────────────────────

// SubmissionStore is an in-memory submission.Repository. Writes and their
// audit events are applied under one lock, mirroring the SQL transaction.
type SubmissionStore struct {
	mu    sync.Mutex
	items map[string]*submission.Submission
	audit *AuditStore

	// BeforeUpdate runs inside Update before the version check; tests use it
	// to simulate a concurrent writer.
	BeforeUpdate func(id string)

	// FailUpdate, when set, is returned by Update for the given ids.
	FailUpdate map[string]error

	updates int
}

func NewSubmissionStore(a *AuditStore) *SubmissionStore {
	if a == nil {
		a = NewAuditStore()
	}
	return &SubmissionStore{items: map[string]*submission.Submission{}, audit: a}
}

// Audit returns the audit store written alongside submissions.
func (s *SubmissionStore) Audit() *AuditStore { return s.audit }

// Put stores sub directly without audit, for fixtures.
func (s *SubmissionStore) Put(sub *submission.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sub.ID] = sub.Clone()
}

// Updates returns the number of successful Update calls.
func (s *SubmissionStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *SubmissionStore) Create(_ context.Context, sub *submission.Submission, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[sub.ID]; exists {
		return errors.Conflict("submission already exists").WithDetail(sub.ID)
	}
	s.items[sub.ID] = sub.Clone()
	if event != nil {
		s.audit.mu.Lock()
		s.audit.append(event)
		s.audit.mu.Unlock()
	}
	return nil
}

func (s *SubmissionStore) GetByID(_ context.Context, id string) (*submission.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.items[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeSubmissionNotFound, "submission not found").WithDetail(id)
	}
	return sub.Clone(), nil
}

func (s *SubmissionStore) Update(_ context.Context, sub *submission.Submission, expectedVersion int, event *audit.Event) error {
	if hook := s.BeforeUpdate; hook != nil {
		hook(sub.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpdate[sub.ID]; err != nil {
		return err
	}
	cur, ok := s.items[sub.ID]
	if !ok {
		return errors.New(errors.ErrCodeSubmissionNotFound, "submission not found").WithDetail(sub.ID)
	}
	if cur.Version != expectedVersion {
		return errors.New(errors.ErrCodeVersionConflict, "optimistic lock conflict").WithDetail(sub.ID)
	}
	sub.Version = expectedVersion + 1
	s.items[sub.ID] = sub.Clone()
	s.updates++
	if event != nil {
		s.audit.mu.Lock()
		s.audit.append(event)
		s.audit.mu.Unlock()
	}
	return nil
}

// Bump increments the stored version as a concurrent writer would.
func (s *SubmissionStore) Bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[id]; ok {
		cur.Version++
	}
}

func (s *SubmissionStore) snapshot() []*submission.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*submission.Submission, 0, len(s.items))
	for _, sub := range s.items {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *SubmissionStore) List(_ context.Context, f submission.ListFilter) ([]*submission.Submission, int64, error) {
	var matched []*submission.Submission
	for _, sub := range s.snapshot() {
		if f.Status != "" && sub.Status != f.Status {
			continue
		}
		if f.FormType != "" && sub.FormType != f.FormType {
			continue
		}
		if f.TaxYear != 0 && sub.TaxYear != f.TaxYear {
			continue
		}
		if f.SubjectRef != "" && sub.SubjectRef != f.SubjectRef {
			continue
		}
		matched = append(matched, sub)
	}
	total := int64(len(matched))
	p := f.Pagination.Normalize()
	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *SubmissionStore) FindLatestAccepted(_ context.Context, subjectRef, formType string, beforeYear int) (*submission.Submission, error) {
	var best *submission.Submission
	for _, sub := range s.snapshot() {
		if sub.Status != submission.StatusAccepted || sub.SubjectRef != subjectRef ||
			sub.FormType != formType || sub.TaxYear >= beforeYear {
			continue
		}
		if best == nil || sub.TaxYear > best.TaxYear {
			best = sub
		}
	}
	if best == nil {
		return nil, errors.New(errors.ErrCodeSubmissionNotFound, "no prior accepted submission")
	}
	return best, nil
}

func (s *SubmissionStore) ListAcceptedPeers(_ context.Context, formType, legalForm, excludeID string, limit int) ([]*submission.Submission, error) {
	var out []*submission.Submission
	for _, sub := range s.snapshot() {
		if sub.Status == submission.StatusAccepted && sub.FormType == formType &&
			sub.LegalForm == legalForm && sub.ID != excludeID {
			out = append(out, sub)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SubmissionStore) CountCreatedSince(_ context.Context, since time.Time) (int64, error) {
	var n int64
	for _, sub := range s.snapshot() {
		if !sub.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *SubmissionStore) CountWithValidationErrors(_ context.Context) (int64, error) {
	var n int64
	for _, sub := range s.snapshot() {
		if sub.HasValidationErrors() {
			n++
		}
	}
	return n, nil
}

func (s *SubmissionStore) ExistsFiled(_ context.Context, jurisdiction, formType string, taxYear int) (bool, error) {
	for _, sub := range s.snapshot() {
		if sub.Jurisdiction == jurisdiction && sub.FormType == formType &&
			sub.TaxYear == taxYear && sub.Status.IsFiled() {
			return true, nil
		}
	}
	return false, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// TemplateStore / CertificateStore
// ─────────────────────────────────────────────────────────────────────────────

// TemplateStore is an in-memory template.Repository.
type TemplateStore struct {
	mu        sync.Mutex
	templates []*template.FormTemplate

	// Err, when set, is returned by FindActive.
	Err error
}

func NewTemplateStore(ts ...*template.FormTemplate) *TemplateStore {
	return &TemplateStore{templates: ts}
}

func (t *TemplateStore) FindActive(_ context.Context, key template.Key) (*template.FormTemplate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	for _, tpl := range t.templates {
		k := template.NormalizeKey(tpl.FormType, tpl.LegalForm, tpl.TaxYear)
		if tpl.IsActive && k == key {
			c := *tpl
			return &c, nil
		}
	}
	return nil, errors.New(errors.ErrCodeTemplateNotFound, "no active template")
}

func (t *TemplateStore) CountActive(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, tpl := range t.templates {
		if tpl.IsActive {
			n++
		}
	}
	return n, nil
}

func (t *TemplateStore) Save(_ context.Context, tpl *template.FormTemplate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tpl.ID == "" {
		tpl.ID = string(common.NewID())
	}
	c := *tpl
	t.templates = append(t.templates, &c)
	return nil
}

// CertificateStore is an in-memory certificate.Repository.
type CertificateStore struct {
	Certificates []*certificate.Certificate
}

func (c *CertificateStore) CountValid(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, cert := range c.Certificates {
		if cert.IsValid(now) {
			n++
		}
	}
	return n, nil
}

func (c *CertificateStore) List(_ context.Context) ([]*certificate.Certificate, error) {
	return c.Certificates, nil
}
