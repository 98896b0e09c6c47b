// Package document resolves form templates, fills them with submission data
// and stores the result on the submission.
package document

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// GenerateResult describes a stored document.
type GenerateResult struct {
	Submission      *submission.Submission `json:"submission"`
	Source          string                 `json:"source"`
	TemplateID      string                 `json:"template_id,omitempty"`
	Regenerated     bool                   `json:"regenerated"`
	Bytes           int                    `json:"bytes"`
	ArchiveLocation string                 `json:"archive_location,omitempty"`
}

// Service is the document use-case contract.
type Service interface {
	// Render resolves and fills the template for sub without persisting.
	Render(ctx context.Context, sub *submission.Submission) (string, *Resolved, error)

	// GenerateDocument renders, stores xmlContent and advances DRAFT or
	// AI_PROCESSED submissions to VALIDATED. VALIDATED submissions are
	// regenerated in place.
	GenerateDocument(ctx context.Context, id, actor string) (*GenerateResult, error)
}

// ServiceConfig holds tunables.
type ServiceConfig struct {
	LockTTL         time.Duration
	ConflictRetries int
	ArchiveTimeout  time.Duration
}

type serviceImpl struct {
	repo     submission.Repository
	resolver *Resolver
	locker   port.Locker
	archive  port.DocumentArchive
	logger   logging.Logger
	clock    port.Clock
	cfg      ServiceConfig
}

// Option customises the service.
type Option func(*serviceImpl)

func WithLocker(l port.Locker) Option { return func(s *serviceImpl) { s.locker = l } }

func WithArchive(a port.DocumentArchive) Option { return func(s *serviceImpl) { s.archive = a } }

func WithClock(c port.Clock) Option { return func(s *serviceImpl) { s.clock = c } }

// NewService constructs the document Service.
func NewService(repo submission.Repository, resolver *Resolver, cfg ServiceConfig, logger logging.Logger, opts ...Option) Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:     repo,
		resolver: resolver,
		locker:   port.NopLocker{},
		logger:   logger.Named("document"),
		clock:    port.SystemClock,
		cfg:      cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// fillData overlays the meta.* keys on the form data.
func fillData(sub *submission.Submission) submission.FormData {
	return sub.FormData.Merge(map[string]interface{}{
		"meta.submissionId": sub.ID,
		"meta.taxYear":      strconv.Itoa(sub.TaxYear),
		"meta.formType":     sub.FormType,
		"meta.legalForm":    sub.LegalForm,
		"meta.jurisdiction": sub.Jurisdiction,
		"meta.subjectRef":   sub.SubjectRef,
	})
}

func (s *serviceImpl) Render(ctx context.Context, sub *submission.Submission) (string, *Resolved, error) {
	if sub == nil {
		return "", nil, errors.InvalidParam("submission is nil")
	}
	tpl, err := s.resolver.Resolve(ctx, sub.FormType, sub.LegalForm, sub.TaxYear)
	if err != nil {
		return "", nil, err
	}
	doc := Fill(tpl.XML, fillData(sub))
	if err := wellFormed(doc); err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeDocumentGeneration, "generated document is not well-formed").
			WithDetail(fmt.Sprintf("template source %s %s", tpl.Source, tpl.TemplateID))
	}
	return doc, tpl, nil
}

func (s *serviceImpl) GenerateDocument(ctx context.Context, id, actor string) (*GenerateResult, error) {
	release, err := s.locker.Acquire(ctx, "submission:"+id, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *GenerateResult
	for attempt := 0; ; attempt++ {
		res, err = s.generateOnce(ctx, id, actor)
		if err == nil {
			break
		}
		if !errors.IsCode(err, errors.ErrCodeVersionConflict) || attempt+1 >= s.cfg.ConflictRetries {
			return nil, err
		}
	}

	s.logger.Info("document generated",
		logging.SubmissionID(id),
		logging.String("source", res.Source),
		logging.Bool("regenerated", res.Regenerated),
		logging.Int("bytes", res.Bytes))

	s.archiveCopy(ctx, res)
	return res, nil
}

func (s *serviceImpl) generateOnce(ctx context.Context, id, actor string) (*GenerateResult, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case submission.StatusDraft, submission.StatusAIProcessed, submission.StatusValidated:
	default:
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot generate a document in status %s", sub.Status)).
			WithDetail("submission " + sub.ID)
	}

	doc, tpl, err := s.Render(ctx, sub)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	expected := sub.Version
	from := sub.Status
	regenerated := from == submission.StatusValidated

	sub.SetDocument(doc, now)
	action, summary := audit.ActionDocumentRegenerated, "document regenerated"
	if !regenerated {
		if _, err := sub.ApplyTransition(submission.StatusValidated, submission.TransitionContext{
			At: now, Reason: "document generated", Actor: actor,
		}); err != nil {
			return nil, err
		}
		action, summary = audit.ActionDocumentGenerated, fmt.Sprintf("document generated, status changed from %s to %s", from, sub.Status)
	}
	event := audit.NewEvent(audit.EntitySubmission, sub.ID, action, summary, actor, now).
		With("from", string(from)).
		With("to", string(sub.Status)).
		With("template_source", tpl.Source).
		With("bytes", len(doc))
	if tpl.TemplateID != "" {
		event.With("template_id", tpl.TemplateID)
	}

	if err := s.repo.Update(ctx, sub, expected, event); err != nil {
		return nil, err
	}
	return &GenerateResult{
		Submission:  sub,
		Source:      tpl.Source,
		TemplateID:  tpl.TemplateID,
		Regenerated: regenerated,
		Bytes:       len(doc),
	}, nil
}

// archiveCopy stores the document in object storage. Failures are logged
// only; the database copy is authoritative.
func (s *serviceImpl) archiveCopy(ctx context.Context, res *GenerateResult) {
	if s.archive == nil || res.Submission.XMLContent == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ArchiveTimeout)
	defer cancel()
	loc, err := s.archive.Put(actx, res.Submission, *res.Submission.XMLContent)
	if err != nil {
		s.logger.Warn("document archive failed",
			logging.SubmissionID(res.Submission.ID),
			logging.String("kind", string(errors.KindExternalServiceError)),
			logging.Err(err))
		return
	}
	res.ArchiveLocation = loc
}
