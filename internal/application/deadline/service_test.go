package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/domain/deadline"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/testutil"
)

// due 20 May of the following year; testutil.FixedNow is 10 May 2024.
var may20 = deadline.Definition{Jurisdiction: "DE-BY", FormType: "UST", Month: 5, Day: 20, YearOffset: 1, Recurring: true}

func newDeadlines(t *testing.T, subs *testutil.SubmissionStore, now time.Time, defs ...deadline.Definition) Service {
	t.Helper()
	svc, err := NewService(defs, subs, ServiceConfig{HorizonDays: 60}, testutil.NewMockLogger(), WithClock(testutil.Clock(now)))
	require.NoError(t, err)
	return svc
}

func TestUpcoming_TenDaysOut(t *testing.T) {
	svc := newDeadlines(t, testutil.NewSubmissionStore(nil), testutil.FixedNow, may20)

	got, err := svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2023, got[0].TaxYear)
	assert.Equal(t, 10, got[0].DaysUntil)
	assert.Equal(t, deadline.StateUpcoming, got[0].State)
}

func TestUpcoming_OverdueAfterDueDate(t *testing.T) {
	later := time.Date(2024, time.May, 25, 8, 0, 0, 0, time.UTC)
	svc := newDeadlines(t, testutil.NewSubmissionStore(nil), later, may20)

	got, err := svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -5, got[0].DaysUntil)
	assert.Equal(t, deadline.StateOverdue, got[0].State)
}

func TestUpcoming_FiledSubmissionSatisfiesDeadline(t *testing.T) {
	subs := testutil.NewSubmissionStore(nil)
	svc := newDeadlines(t, subs, testutil.FixedNow, may20)

	subs.Put(testutil.NewSubmission("UST", 2023, submission.StatusDraft, nil))
	got, err := svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "a draft does not count as filed")

	subs.Put(testutil.NewSubmission("UST", 2023, submission.StatusSubmitted, nil))
	got, err = svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpcoming_SortedAndFiltered(t *testing.T) {
	overdue := deadline.Definition{Jurisdiction: "DE-NW", FormType: "GEWST", Month: 3, Day: 1, YearOffset: 1, Recurring: true}
	today := deadline.Definition{Jurisdiction: "DE-BE", FormType: "UST", Month: 5, Day: 10, YearOffset: 1, Recurring: true}
	far := deadline.Definition{Jurisdiction: "DE-BY", FormType: "ANLAGE_V", Month: 12, Day: 1, YearOffset: 1, Recurring: true}

	subs := testutil.NewSubmissionStore(nil)
	svc, err := NewService([]deadline.Definition{may20, overdue, today, far}, subs, ServiceConfig{HorizonDays: 60, LookbackYears: 0},
		nil, WithClock(testutil.Clock(testutil.FixedNow)))
	require.NoError(t, err)

	got, err := svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 2, "due today and beyond the horizon are excluded")
	assert.Equal(t, "GEWST", got[0].FormType)
	assert.Less(t, got[0].DaysUntil, 0)
	assert.Equal(t, "UST", got[1].FormType)

	got, err = svc.Upcoming(context.Background(), Query{Jurisdiction: "de-nw"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DE-NW", got[0].Jurisdiction)
}

func TestUpcoming_CachesPerDay(t *testing.T) {
	cache := testutil.NewMemCache()
	subs := testutil.NewSubmissionStore(nil)
	svc, err := NewService([]deadline.Definition{may20}, subs, ServiceConfig{CacheTTL: time.Minute}, nil,
		WithClock(testutil.Clock(testutil.FixedNow)), WithCache(cache))
	require.NoError(t, err)

	_, err = svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	subs.Put(testutil.NewSubmission("UST", 2023, submission.StatusAccepted, nil))

	got, err := svc.Upcoming(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "served from cache")
	assert.Equal(t, 1, cache.Hits)
}

func TestNewService_RejectsInvalidDefinition(t *testing.T) {
	_, err := NewService([]deadline.Definition{{Jurisdiction: "DE", FormType: "UST", Month: 13, Day: 1, Recurring: true}}, nil, ServiceConfig{}, nil)
	assert.Error(t, err)
}
