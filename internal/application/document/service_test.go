package document

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/testutil"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type stubArchive struct {
	err  error
	puts int
}

func (a *stubArchive) Put(_ context.Context, sub *submission.Submission, _ string) (string, error) {
	a.puts++
	if a.err != nil {
		return "", a.err
	}
	return "s3://docs/" + sub.ID + ".xml", nil
}

func newDocService(store *testutil.SubmissionStore, tpls *testutil.TemplateStore, logger *testutil.MockLogger, archive *stubArchive) Service {
	return NewService(store, NewResolver(tpls, nil, logger), ServiceConfig{}, logger,
		WithArchive(archive), WithClock(testutil.Clock(testutil.FixedNow)))
}

func TestGenerateDocument_AdvancesDraftToValidated(t *testing.T) {
	store := testutil.NewSubmissionStore(nil)
	sub := testutil.NewSubmission("ANLAGE_KAP", 2023, submission.StatusDraft, map[string]interface{}{"grossDividends": 1000.0})
	store.Put(sub)
	archive := &stubArchive{}
	svc := newDocService(store, testutil.NewTemplateStore(), testutil.NewMockLogger(), archive)

	res, err := svc.GenerateDocument(context.Background(), sub.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusValidated, res.Submission.Status)
	assert.Equal(t, SourceSynthesized, res.Source)
	assert.False(t, res.Regenerated)
	assert.Equal(t, "s3://docs/"+sub.ID+".xml", res.ArchiveLocation)

	stored, err := store.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.XMLContent)
	assert.Contains(t, *stored.XMLContent, "<GrossDividends>1000</GrossDividends>")
	assert.Contains(t, *stored.XMLContent, "<WithholdingTax></WithholdingTax>")
	assert.Contains(t, *stored.XMLContent, `taxYear="2023"`)
	assert.False(t, HasPlaceholders(*stored.XMLContent))

	events := store.Audit().ByAction(audit.ActionDocumentGenerated)
	require.Len(t, events, 1)
	assert.Equal(t, "VALIDATED", events[0].Metadata["to"])
}

func TestGenerateDocument_RegeneratesValidated(t *testing.T) {
	store := testutil.NewSubmissionStore(nil)
	sub := testutil.NewSubmission("UST", 2023, submission.StatusValidated, map[string]interface{}{"revenue": 5000.0})
	store.Put(sub)
	tpls := testutil.NewTemplateStore(&template.FormTemplate{
		ID: "tpl-1", FormType: "UST", LegalForm: "natural_person", TaxYear: 2023, IsActive: true,
		XMLTemplate: "<Ust year=\"{{meta.taxYear}}\"><Revenue>{{revenue}}</Revenue></Ust>",
	})
	svc := newDocService(store, tpls, testutil.NewMockLogger(), &stubArchive{})

	res, err := svc.GenerateDocument(context.Background(), sub.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, "tpl-1", res.TemplateID)
	assert.Equal(t, `<Ust year="2023"><Revenue>5000</Revenue></Ust>`, *res.Submission.XMLContent)
	assert.Len(t, store.Audit().ByAction(audit.ActionDocumentRegenerated), 1)
}

func TestGenerateDocument_RejectsFiledSubmissions(t *testing.T) {
	store := testutil.NewSubmissionStore(nil)
	sub := testutil.NewSubmission("UST", 2023, submission.StatusSubmitted, nil)
	store.Put(sub)
	svc := newDocService(store, testutil.NewTemplateStore(), testutil.NewMockLogger(), &stubArchive{})

	_, err := svc.GenerateDocument(context.Background(), sub.ID, "alice")
	assert.True(t, errors.IsKind(err, errors.KindInvalidTransition))

	stored, _ := store.GetByID(context.Background(), sub.ID)
	assert.Nil(t, stored.XMLContent)
	assert.Empty(t, store.Audit().All())
}

func TestGenerateDocument_MalformedStoredTemplate(t *testing.T) {
	store := testutil.NewSubmissionStore(nil)
	sub := testutil.NewSubmission("UST", 2023, submission.StatusDraft, nil)
	store.Put(sub)
	tpls := testutil.NewTemplateStore(&template.FormTemplate{
		ID: "broken", FormType: "UST", LegalForm: "natural_person", TaxYear: 2023, IsActive: true, XMLTemplate: "<Ust><Open></Ust>",
	})
	svc := newDocService(store, tpls, testutil.NewMockLogger(), &stubArchive{})

	_, err := svc.GenerateDocument(context.Background(), sub.ID, "alice")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentGeneration))
	stored, _ := store.GetByID(context.Background(), sub.ID)
	assert.Equal(t, submission.StatusDraft, stored.Status)
}

func TestGenerateDocument_ArchiveFailureIsNonFatal(t *testing.T) {
	store := testutil.NewSubmissionStore(nil)
	sub := testutil.NewSubmission("UST", 2023, submission.StatusAIProcessed, nil)
	store.Put(sub)
	logger := testutil.NewMockLogger()
	archive := &stubArchive{err: stderrors.New("bucket missing")}
	svc := newDocService(store, testutil.NewTemplateStore(), logger, archive)

	res, err := svc.GenerateDocument(context.Background(), sub.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveLocation)
	assert.Equal(t, 1, archive.puts)
	assert.True(t, logger.HasMessage("warn", "document archive failed"))
}
