package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/jira"
	"github.com/daviddao/deskflow/internal/tracking"
	"github.com/daviddao/deskflow/internal/transform"
	"github.com/daviddao/deskflow/internal/types"
)

const testForm = `{"design": {"questions": {
  "1":   {"type": "cs", "choices": [{"id": 101, "label": "Permanent"}, {"id": 102, "label": "Temporary"}]},
  "3":   {"type": "da"},
  "4":   {"type": "da"},
  "5":   {"type": "ts"},
  "159": {"type": "cm", "choices": [{"id": 10, "label": "Cordless handset"}, {"id": 11, "label": "Mobile phone"}]}
}}}`

type fakeForms struct {
	err   error
	calls int
}

func (f *fakeForms) FetchForm(_ context.Context, _, _, _ string) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	dec := json.NewDecoder(strings.NewReader(testForm))
	dec.UseNumber()
	var form map[string]any
	if err := dec.Decode(&form); err != nil {
		return nil, err
	}
	return form, nil
}

type fakeRows struct {
	rows  []types.Row
	err   error
	since []string
}

func (f *fakeRows) FetchSince(_ context.Context, since string) ([]types.Row, error) {
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Row
	for _, r := range f.rows {
		if since == "" || transform.ISODate(r.Get("createdat")) >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeCreator struct {
	calls []jira.CreateRequestInput
	fn    func(in jira.CreateRequestInput) (string, error)
}

func (f *fakeCreator) CreateRequest(_ context.Context, in jira.CreateRequestInput) (string, error) {
	f.calls = append(f.calls, in)
	if f.fn != nil {
		return f.fn(in)
	}
	return fmt.Sprintf("HD-%d", len(f.calls)), nil
}

func (f *fakeCreator) summaries() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Summary)
	}
	return out
}

// memStore keeps the state in memory and a snapshot of every save.
type memStore struct {
	state *types.State
	saves []*types.State
	err   error
}

func (m *memStore) Load() *types.State {
	if m.state == nil {
		return types.DefaultState()
	}
	return m.state.Clone()
}

func (m *memStore) Save(st *types.State) error {
	m.saves = append(m.saves, st.Clone())
	if m.err != nil {
		return m.err
	}
	m.state = st.Clone()
	return nil
}

func day(d int) func() time.Time {
	return func() time.Time { return time.Date(2024, 5, d, 15, 0, 0, 0, time.Local) }
}

func sampleRows() []types.Row {
	return []types.Row{
		{
			"emailaddress":        "a@x.com",
			"createdat":           "2024-05-01 10:00:00",
			"timeframe":           "Permanent",
			"newusername":         "Ann",
			"handsetsandheadsets": "Cordless handset; Mobile phone; Gizmo",
		},
		{
			"email":                 "b@x.com",
			"createdat":             time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
			"timeframe":             "Temporary",
			"dateneededby":          "2024-06-01",
			"approximateendingdate": "2024-07-01",
		},
		{
			"emailaddress": "c@x.com",
			"createdat":    "2024-05-02",
			"timeframe":    "Someday",
		},
		{
			"createdat": "2024-05-02",
			"timeframe": "Permanent",
		},
	}
}

func testOptions() Options {
	cfg := config.DefaultConfig()
	cfg.Jira.CloudID = "cloud-1"
	cfg.Jira.ServiceDeskID = "4"
	cfg.Jira.RequestTypeID = "42"
	return OptionsFromConfig(cfg)
}

type harness struct {
	forms   *fakeForms
	rows    *fakeRows
	creator *fakeCreator
	store   *memStore
	logs    *observer.ObservedLogs
}

func newHarness() *harness {
	return &harness{
		forms:   &fakeForms{},
		rows:    &fakeRows{rows: sampleRows()},
		creator: &fakeCreator{},
		store:   &memStore{},
	}
}

func (h *harness) pipeline(now func() time.Time, opts Options) *Pipeline {
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	return New(Deps{
		Forms:    h.forms,
		Requests: h.creator,
		Rows:     h.rows,
		Store:    h.store,
		Now:      now,
		Logger:   zap.New(core),
	}, opts)
}

func TestRun_FirstRun(t *testing.T) {
	h := newHarness()
	summary, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 4, summary.Eligible)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 1, summary.Flagged)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "2024-05-02", summary.LastRunDate)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{""}, h.rows.since)

	require.Len(t, h.creator.calls, 2)
	ann := h.creator.calls[0]
	assert.Equal(t, "Phone equipment request - Ann", ann.Summary)
	assert.Equal(t, "newusername: Ann", ann.Description)
	assert.Equal(t, "4", ann.ServiceDeskID)
	assert.Equal(t, "42", ann.RequestTypeID)
	assert.Equal(t, types.Answers{
		"1":   types.ChoiceAnswer("101"),
		"5":   types.TextAnswer("Ann"),
		"159": types.ChoiceAnswer("10", "11", "0"),
	}, ann.Answers)

	bob := h.creator.calls[1]
	assert.Equal(t, "Phone equipment request - b@x.com", bob.Summary)
	assert.Equal(t, "Phone equipment request", bob.Description)
	assert.Equal(t, types.DateAnswer("2024-07-01"), bob.Answers["4"])

	st := h.store.state
	assert.Equal(t, "2024-05-02", st.LastRunDate)
	assert.Equal(t, []string{"b@x.com"}, st.ProcessedEmailsSameDate, "only rows dated today count")
	assert.Equal(t, map[string]string{"a@x.com": "HD-1", "b@x.com": "HD-2"}, st.EmailToIssue)
	assert.Equal(t, map[string]string{"c@x.com": "Invalid timeframe: Someday"}, st.FlaggedRequests)
	assert.Len(t, h.store.saves, 5, "one save per row plus the final one")
}

func TestRun_SecondRunDoesNotResubmit(t *testing.T) {
	h := newHarness()
	_, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.creator.calls, 2)

	h.rows.rows = append(h.rows.rows, types.Row{
		"emailaddress": "a@x.com",
		"createdat":    "2024-05-03",
		"timeframe":    "Permanent",
	})
	summary, err := h.pipeline(day(3), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "2024-05-02"}, h.rows.since)
	assert.Len(t, h.creator.calls, 2, "no new submissions")
	assert.Equal(t, 0, summary.Submitted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Flagged, "same-day flagged row is re-evaluated")
	assert.Equal(t, "2024-05-03", h.store.state.LastRunDate)
	assert.Empty(t, h.store.state.ProcessedEmailsSameDate)
}

func TestRun_ResumesFromLastSave(t *testing.T) {
	h := newHarness()
	_, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	// Pretend the process died right after the first row was saved.
	afterFirst := h.store.saves[0]
	require.Contains(t, afterFirst.EmailToIssue, "a@x.com")
	require.NotContains(t, afterFirst.EmailToIssue, "b@x.com")

	h2 := newHarness()
	h2.store.state = afterFirst
	_, err = h2.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Phone equipment request - b@x.com"}, h2.creator.summaries())
	assert.Equal(t, "HD-1", h2.store.state.EmailToIssue["a@x.com"])
}

func TestRun_RowPanicIsContained(t *testing.T) {
	h := newHarness()
	h.creator.fn = func(in jira.CreateRequestInput) (string, error) {
		if strings.Contains(in.Summary, "Ann") {
			panic("boom")
		}
		return "HD-9", nil
	}

	summary, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Submitted)
	assert.Equal(t, 1, h.logs.FilterMessage("unexpected error processing row").Len())
	assert.Equal(t, map[string]string{"b@x.com": "HD-9"}, h.store.state.EmailToIssue)
}

func TestRun_SubmissionFailureLeavesRowEligible(t *testing.T) {
	h := newHarness()
	h.creator.fn = func(in jira.CreateRequestInput) (string, error) {
		if strings.Contains(in.Summary, "b@x.com") {
			return "", &jira.StatusError{StatusCode: 500}
		}
		return "HD-1", nil
	}

	summary, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.NotContains(t, h.store.state.EmailToIssue, "b@x.com")
	assert.Empty(t, h.store.state.ProcessedEmailsSameDate)
	assert.Equal(t, 1, h.logs.FilterMessage("failed creating request").Len())

	// Next run on the same day picks it up again.
	h.creator.fn = nil
	_, err = h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, h.store.state.EmailToIssue, "b@x.com")
	assert.Equal(t, []string{"b@x.com"}, h.store.state.ProcessedEmailsSameDate)
}

func TestRun_FormFetchFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.forms.err = &jira.FetchError{URL: "https://forms", Attempts: 3, Err: errors.New("503")}

	_, err := h.pipeline(day(2), testOptions()).Run(context.Background())

	assert.ErrorIs(t, err, jira.ErrFetchExhausted)
	assert.Empty(t, h.rows.since, "rows are not read")
	assert.Empty(t, h.creator.calls)
	assert.Empty(t, h.store.saves, "tracking state is untouched")
}

func TestRun_RowSourceFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.rows.err = errors.New("connection reset")

	_, err := h.pipeline(day(2), testOptions()).Run(context.Background())

	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, h.store.saves)
}

func TestRun_NoRowsStillMovesWatermark(t *testing.T) {
	h := newHarness()
	h.rows.rows = nil
	h.store.state = types.DefaultState()
	h.store.state.LastRunDate = "2024-05-01"
	h.store.state.ProcessedEmailsSameDate = []string{"a@x.com"}

	summary, err := h.pipeline(day(4), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Eligible)
	assert.Equal(t, "2024-05-04", h.store.state.LastRunDate)
	assert.Empty(t, h.store.state.ProcessedEmailsSameDate)
	assert.Len(t, h.store.saves, 1)
}

func TestRun_SaveErrorsAreLogged(t *testing.T) {
	h := newHarness()
	h.store.err = errors.New("disk full")

	summary, err := h.pipeline(day(2), testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 5, h.logs.FilterMessage("could not save tracking state").Len())
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness()
	opts := testOptions()
	opts.DryRun = true

	summary, err := h.pipeline(day(2), opts).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Submitted)
	assert.Empty(t, h.creator.calls)
	assert.Empty(t, h.store.saves)
	assert.Equal(t, 2, h.logs.FilterMessage("dry run: would create request").Len())
}

func TestRun_WithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	h := newHarness()
	core, _ := observer.New(zapcore.InfoLevel)
	store := tracking.NewFileStore(path, zap.New(core))

	p := New(Deps{Forms: h.forms, Requests: h.creator, Rows: h.rows, Store: store, Now: day(2)}, testOptions())
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// A second pipeline reading the same file submits nothing new.
	creator := &fakeCreator{}
	p = New(Deps{Forms: h.forms, Requests: creator, Rows: h.rows, Store: store, Now: day(2)}, testOptions())
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, creator.calls)
	assert.Equal(t, "HD-2", store.Load().EmailToIssue["b@x.com"])
}
