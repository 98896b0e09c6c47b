//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/certificate"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres/pgtest"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	subs  submission.Repository
	audit audit.Repository
	certs certificate.Repository
	tpls  template.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	pool, _ := pgtest.Start(t)
	log := logging.NewNopLogger()
	return fixture{
		subs:  repositories.NewSubmissionRepo(pool, log),
		audit: repositories.NewAuditRepo(pool, log),
		certs: repositories.NewCertificateRepo(pool),
		tpls:  repositories.NewTemplateRepo(pool, log),
	}
}

func newSub(t *testing.T, subject, form string, year int) *submission.Submission {
	t.Helper()
	s, err := submission.NewSubmission(submission.CreateParams{
		TaxYear:      year,
		FormType:     form,
		Jurisdiction: "DE-BY",
		LegalForm:    "natural_person",
		SubjectRef:   subject,
		FormData:     map[string]interface{}{"grossDividends": 1000.0, "withholdingTax": 200.0},
	}, now)
	require.NoError(t, err)
	return s
}

func created(s *submission.Submission) *audit.Event {
	return audit.NewEvent(audit.EntitySubmission, s.ID, audit.ActionCreated, "created", "tester", now)
}

func TestSubmissionRepo_CreateGetWithAudit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := newSub(t, "subject-1", "ANLAGE_KAP", 2024)

	require.NoError(t, f.subs.Create(ctx, s, created(s)))

	got, err := f.subs.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.StatusDraft, got.Status)
	assert.Equal(t, 1000.0, got.FormData["grossDividends"])
	assert.Empty(t, got.ValidationErrors)
	assert.Nil(t, got.XMLContent)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.CreatedAt.Equal(now))

	events, err := f.audit.ListByEntity(ctx, audit.EntitySubmission, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCreated, events[0].Action)
	assert.Equal(t, "tester", events[0].PerformedBy)

	err = f.subs.Create(ctx, s, nil)
	assert.True(t, errors.IsConflict(err))

	_, err = f.subs.GetByID(ctx, "missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSubmissionNotFound))
}

func TestSubmissionRepo_UpdateOptimisticLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := newSub(t, "subject-1", "ANLAGE_KAP", 2024)
	require.NoError(t, f.subs.Create(ctx, s, nil))

	s.SetDocument("<Declaration/>", now)
	s.RecordValidation([]submission.Issue{{Field: "withholdingTax", Severity: submission.SeverityWarning,
		Channel: submission.ChannelDeterministic, ActionRequired: true}}, 90, now)
	ev := audit.NewEvent(audit.EntitySubmission, s.ID, audit.ActionValidated, "validated", "tester", now)
	require.NoError(t, f.subs.Update(ctx, s, 1, ev))
	assert.Equal(t, 2, s.Version)

	got, err := f.subs.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.XMLContent)
	assert.Equal(t, "<Declaration/>", *got.XMLContent)
	require.Len(t, got.ValidationErrors, 1)
	assert.True(t, got.ValidationErrors[0].ActionRequired)
	assert.Equal(t, 90, *got.ConfidenceScore)

	stale := audit.NewEvent(audit.EntitySubmission, s.ID, audit.ActionValidated, "stale", "tester", now)
	err = f.subs.Update(ctx, got, 1, stale)
	assert.True(t, errors.IsCode(err, errors.ErrCodeVersionConflict))

	events, err := f.audit.ListByEntity(ctx, audit.EntitySubmission, s.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "a conflicting update writes no audit event")

	ghost := newSub(t, "subject-1", "UST", 2024)
	err = f.subs.Update(ctx, ghost, 1, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSubmissionNotFound))
}

func TestSubmissionRepo_Queries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	accept := func(s *submission.Submission) {
		s.Status = submission.StatusAccepted
		s.StatusChangedAt = now
		require.NoError(t, f.subs.Update(ctx, s, s.Version, nil))
	}

	prior2022 := newSub(t, "subject-1", "ANLAGE_KAP", 2022)
	prior2023 := newSub(t, "subject-1", "ANLAGE_KAP", 2023)
	current := newSub(t, "subject-1", "ANLAGE_KAP", 2024)
	peer := newSub(t, "subject-2", "ANLAGE_KAP", 2023)
	other := newSub(t, "subject-3", "UST", 2024)
	for _, s := range []*submission.Submission{prior2022, prior2023, current, peer, other} {
		require.NoError(t, f.subs.Create(ctx, s, nil))
	}
	accept(prior2022)
	accept(prior2023)
	accept(peer)

	latest, err := f.subs.FindLatestAccepted(ctx, "subject-1", "ANLAGE_KAP", 2024)
	require.NoError(t, err)
	assert.Equal(t, prior2023.ID, latest.ID)

	_, err = f.subs.FindLatestAccepted(ctx, "subject-1", "ANLAGE_KAP", 2022)
	assert.True(t, errors.IsNotFound(err))

	peers, err := f.subs.ListAcceptedPeers(ctx, "ANLAGE_KAP", "natural_person", prior2023.ID, 10)
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	items, total, err := f.subs.List(ctx, submission.ListFilter{
		FormType:   "ANLAGE_KAP",
		Pagination: common.Pagination{Page: 1, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, items, 2)

	_, total, err = f.subs.List(ctx, submission.ListFilter{Status: submission.StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	n, err := f.subs.CountCreatedSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = f.subs.CountWithValidationErrors(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	filed, err := f.subs.ExistsFiled(ctx, "DE-BY", "ANLAGE_KAP", 2023)
	require.NoError(t, err)
	assert.True(t, filed)
	filed, err = f.subs.ExistsFiled(ctx, "DE-BY", "UST", 2024)
	require.NoError(t, err)
	assert.False(t, filed)
}

func TestAuditRepo_AppendOnly(t *testing.T) {
	pool, _ := pgtest.Start(t)
	repo := repositories.NewAuditRepo(pool, logging.NewNopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := audit.NewEvent(audit.EntityBatch, "batch-1", audit.ActionBatchTransition, "batch", "", now).
			With("index", i)
		require.NoError(t, repo.Append(ctx, e))
	}
	events, err := repo.ListByEntity(ctx, audit.EntityBatch, "batch-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, float64(0), events[0].Metadata["index"])
	assert.Equal(t, "system", events[0].PerformedBy)

	_, err = pool.Exec(ctx, `UPDATE audit_events SET summary = 'x'`)
	assert.Error(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM audit_events`)
	assert.Error(t, err)

	assert.Error(t, repo.Append(ctx, &audit.Event{}))
}

func TestAuditRepo_CountTransitionsSince(t *testing.T) {
	pool, _ := pgtest.Start(t)
	repo := repositories.NewAuditRepo(pool, logging.NewNopLogger())
	ctx := context.Background()

	transition := func(id, to string, at time.Time) {
		e := audit.NewEvent(audit.EntitySubmission, id, submission.ActionStatusChanged, "changed", "", at).
			With("from", "SUBMITTED").With("to", to)
		require.NoError(t, repo.Append(ctx, e))
	}
	for _, id := range []string{"a", "b", "c"} {
		transition(id, "REJECTED", now)
	}
	transition("a", "DRAFT", now.Add(time.Minute))
	transition("old", "REJECTED", now.AddDate(0, -2, 0))
	require.NoError(t, repo.Append(ctx, audit.NewEvent(audit.EntitySubmission, "d", audit.ActionTransitionFailed,
		"failed", "", now).With("target", "REJECTED")))

	n, err := repo.CountTransitionsSince(ctx, audit.EntitySubmission, "REJECTED", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.CountTransitionsSince(ctx, audit.EntityBatch, "REJECTED", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTemplateRepo_SingleActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := &template.FormTemplate{FormType: "anlage_kap", LegalForm: "natural_person", TaxYear: 2024,
		XMLTemplate: "<v1/>", IsActive: true}
	require.NoError(t, f.tpls.Save(ctx, first))
	second := &template.FormTemplate{FormType: "ANLAGE_KAP", LegalForm: "natural_person", TaxYear: 2024,
		XMLTemplate: "<v2/>", IsActive: true}
	require.NoError(t, f.tpls.Save(ctx, second))

	got, err := f.tpls.FindActive(ctx, template.NormalizeKey("anlage_kap", "natural_person", 2024))
	require.NoError(t, err)
	assert.Equal(t, "<v2/>", got.XMLTemplate)

	n, err := f.tpls.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.tpls.FindActive(ctx, template.NormalizeKey("UST", "", 2024))
	assert.True(t, errors.IsCode(err, errors.ErrCodeTemplateNotFound))

	assert.Error(t, f.tpls.Save(ctx, &template.FormTemplate{FormType: "UST"}))
}

func TestCertificateRepo(t *testing.T) {
	pool, _ := pgtest.Start(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO certificates (id, name, valid_from, valid_until, is_active) VALUES
			('c1', 'elster-a', $1, $2, TRUE),
			('c2', 'elster-b', $1, $3, TRUE),
			('c3', 'elster-c', $1, $2, FALSE)`,
		now.AddDate(-1, 0, 0), now.AddDate(0, 6, 0), now.AddDate(0, -1, 0))
	require.NoError(t, err)

	repo := repositories.NewCertificateRepo(pool)
	n, err := repo.CountValid(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c2", all[0].ID)
}
