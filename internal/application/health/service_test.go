package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/certificate"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/testutil"
)

func validCert() *certificate.Certificate {
	return &certificate.Certificate{ID: "c1", IsActive: true, ValidUntil: testutil.FixedNow.Add(time.Hour)}
}

func activeTemplate() *template.FormTemplate {
	return &template.FormTemplate{ID: "t1", FormType: "UST", TaxYear: 2023, IsActive: true}
}

func newHealth(subs *testutil.SubmissionStore, certs *testutil.CertificateStore, tpls *testutil.TemplateStore, opts ...Option) Service {
	opts = append([]Option{WithClock(testutil.Clock(testutil.FixedNow))}, opts...)
	return NewService(subs, subs.Audit(), certs, tpls, ServiceConfig{CacheTTL: time.Minute}, testutil.NewMockLogger(), opts...)
}

func statusOf(r *Report, name string) Status {
	for _, c := range r.Checks {
		if c.Name == name {
			return c.Status
		}
	}
	return ""
}

func TestAggregate_Dominance(t *testing.T) {
	assert.Equal(t, StatusHealthy, Aggregate(nil))
	assert.Equal(t, StatusWarning, Aggregate([]Check{{Status: StatusHealthy}, {Status: StatusWarning}}))
	assert.Equal(t, StatusCritical, Aggregate([]Check{{Status: StatusWarning}, {Status: StatusCritical}, {Status: StatusHealthy}}))
}

func TestCompute_AllHealthy(t *testing.T) {
	subs := testutil.NewSubmissionStore(nil)
	subs.Put(testutil.NewSubmission("UST", 2023, submission.StatusDraft, nil))
	svc := newHealth(subs, &testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}}, testutil.NewTemplateStore(activeTemplate()))

	r, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, r.Overall)
	require.Len(t, r.Checks, 5)
	assert.Equal(t, CheckRecent, r.Checks[1].Name)
	assert.EqualValues(t, 1, r.Checks[1].Value)
}

func TestCompute_CertificateDominatesTemplateWarning(t *testing.T) {
	expired := &certificate.Certificate{ID: "old", IsActive: true, ValidUntil: testutil.FixedNow.Add(-time.Hour)}
	svc := newHealth(testutil.NewSubmissionStore(nil), &testutil.CertificateStore{Certificates: []*certificate.Certificate{expired}}, testutil.NewTemplateStore())

	r, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, statusOf(r, CheckCertificates))
	assert.Equal(t, StatusWarning, statusOf(r, CheckTemplates))
	assert.Equal(t, StatusCritical, r.Overall)
}

// reject files and rejects n submissions through the filing service so the
// audit trail carries real transition events.
func reject(t *testing.T, subs *testutil.SubmissionStore, n int) []string {
	t.Helper()
	svc := filing.NewService(subs, subs.Audit(), nil, filing.ServiceConfig{}, nil,
		filing.WithClock(testutil.Clock(testutil.FixedNow)))
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sub := testutil.NewSubmission("UST", 2023, submission.StatusSubmitted, nil)
		subs.Put(sub)
		_, err := svc.Transition(context.Background(), filing.TransitionRequest{ID: sub.ID, Target: submission.StatusRejected})
		require.NoError(t, err)
		ids = append(ids, sub.ID)
	}
	return ids
}

func TestCompute_FailureAndValidationThresholds(t *testing.T) {
	subs := testutil.NewSubmissionStore(nil)
	reject(t, subs, 6)
	for i := 0; i < 10; i++ {
		s := testutil.NewSubmission("UST", 2023, submission.StatusDraft, nil)
		s.ValidationErrors = []submission.Issue{{Field: "revenue", Severity: submission.SeverityError}}
		subs.Put(s)
	}
	old := audit.NewEvent(audit.EntitySubmission, "old", submission.ActionStatusChanged, "rejected long ago", "",
		testutil.FixedNow.AddDate(0, -3, 0)).With("from", "SUBMITTED").With("to", "REJECTED")
	require.NoError(t, subs.Audit().Append(context.Background(), old))

	svc := newHealth(subs, &testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}}, testutil.NewTemplateStore(activeTemplate()))
	r, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, r.Checks[3].Value)
	assert.Equal(t, StatusWarning, statusOf(r, CheckFailures), "6 > 5 rejections")
	assert.Equal(t, StatusHealthy, statusOf(r, CheckValidation), "10 is not more than 10")
	assert.Equal(t, StatusWarning, r.Overall)

	extra := testutil.NewSubmission("UST", 2023, submission.StatusDraft, nil)
	extra.ValidationErrors = []submission.Issue{{Field: "x"}}
	subs.Put(extra)
	r, err = NewService(subs, subs.Audit(), &testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}},
		testutil.NewTemplateStore(activeTemplate()), ServiceConfig{}, nil, WithClock(testutil.Clock(testutil.FixedNow))).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, statusOf(r, CheckValidation))
}

func TestCompute_ReopenedRejectionsStillCount(t *testing.T) {
	subs := testutil.NewSubmissionStore(nil)
	ids := reject(t, subs, 8)

	svc := filing.NewService(subs, subs.Audit(), nil, filing.ServiceConfig{}, nil,
		filing.WithClock(testutil.Clock(testutil.FixedNow)))
	for _, id := range ids[:4] {
		_, err := svc.Transition(context.Background(), filing.TransitionRequest{ID: id, Target: submission.StatusDraft, Reason: "correct and refile"})
		require.NoError(t, err)
	}
	page, err := svc.ListSubmissions(context.Background(), submission.ListFilter{Status: submission.StatusRejected})
	require.NoError(t, err)
	require.EqualValues(t, 4, page.Total)

	r, err := newHealth(subs, &testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}},
		testutil.NewTemplateStore(activeTemplate())).Compute(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8, r.Checks[3].Value)
	assert.Equal(t, StatusWarning, statusOf(r, CheckFailures))
	assert.Equal(t, StatusWarning, r.Overall)
}

// gatedCertificates blocks CountValid until released or its context ends.
type gatedCertificates struct {
	testutil.CertificateStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCertificates) CountValid(ctx context.Context, now time.Time) (int64, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return g.CertificateStore.CountValid(ctx, now)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestCompute_CanceledCallerDoesNotFailSharedComputation(t *testing.T) {
	certs := &gatedCertificates{
		CertificateStore: testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}},
		started:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := newHealth(testutil.NewSubmissionStore(nil), nil, testutil.NewTemplateStore(activeTemplate()))
	svc.(*serviceImpl).certs = certs

	type outcome struct {
		report *Report
		err    error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		r, err := svc.Compute(ctx)
		first <- outcome{r, err}
	}()
	<-certs.started
	cancel()
	go func() {
		r, err := svc.Compute(context.Background())
		second <- outcome{r, err}
	}()
	close(certs.release)

	for _, ch := range []chan outcome{first, second} {
		select {
		case o := <-ch:
			require.NoError(t, o.err)
			assert.Equal(t, StatusHealthy, o.report.Overall)
		case <-time.After(5 * time.Second):
			t.Fatal("health computation did not finish")
		}
	}
}

func TestCompute_UsesCache(t *testing.T) {
	cache := testutil.NewMemCache()
	certs := &testutil.CertificateStore{Certificates: []*certificate.Certificate{validCert()}}
	svc := newHealth(testutil.NewSubmissionStore(nil), certs, testutil.NewTemplateStore(activeTemplate()), WithCache(cache))

	first, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, first.Overall)
	assert.Equal(t, time.Minute, cache.TTLs[cacheKey])

	certs.Certificates = nil
	cached, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, cached.Overall)
	assert.Equal(t, 1, cache.Hits)

	require.NoError(t, svc.Invalidate(context.Background()))
	fresh, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, fresh.Overall)
}
