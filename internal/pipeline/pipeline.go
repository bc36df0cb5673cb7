// Package pipeline runs one incremental pass: load tracking state, fetch the
// live form, read new rows, submit each eligible row as a customer request,
// and move the watermark.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/jira"
	"github.com/daviddao/deskflow/internal/mapping"
	"github.com/daviddao/deskflow/internal/tracking"
	"github.com/daviddao/deskflow/internal/transform"
	"github.com/daviddao/deskflow/internal/types"
)

// FormFetcher returns the form definition of a request type.
type FormFetcher interface {
	FetchForm(ctx context.Context, cloudID, serviceDeskID, requestTypeID string) (map[string]any, error)
}

// RequestCreator creates one customer request and returns its ticket reference.
type RequestCreator interface {
	CreateRequest(ctx context.Context, in jira.CreateRequestInput) (string, error)
}

// RowSource returns rows created on or after a date.
type RowSource interface {
	FetchSince(ctx context.Context, since string) ([]types.Row, error)
}

// StateStore loads and saves the tracking state.
type StateStore interface {
	Load() *types.State
	Save(*types.State) error
}

// Deps are the collaborators of a run.
type Deps struct {
	Forms    FormFetcher
	Requests RequestCreator
	Rows     RowSource
	Store    StateStore
	Now      func() time.Time // defaults to time.Now; the local date is "today"
	Logger   *zap.Logger
}

// Options are the per-deployment settings of a run.
type Options struct {
	CloudID       string
	ServiceDeskID string
	RequestTypeID string
	CreatedColumn string
	Fields        transform.FieldMap
	Ticket        config.TicketConfig
	DryRun        bool // build payloads but neither submit nor save
}

// OptionsFromConfig collects run options from the config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CloudID:       cfg.Jira.CloudID,
		ServiceDeskID: cfg.Jira.ServiceDeskID,
		RequestTypeID: cfg.Jira.RequestTypeID,
		CreatedColumn: cfg.Source.CreatedColumn,
		Fields:        transform.FieldMapFromConfig(cfg.Fields),
		Ticket:        cfg.Ticket,
	}
}

// Pipeline runs the ETL pass.
type Pipeline struct {
	deps    Deps
	opts    Options
	builder *transform.Builder
	logger  *zap.Logger
}

// New returns a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		builder: transform.NewBuilder(opts.Fields, logger),
		logger:  logger,
	}
}

// rowResult is what processing one row produced.
type rowResult struct {
	outcome types.Outcome
	email   string
	date    string // row creation date, YYYY-MM-DD or ""
}

// Run executes one pass and returns its summary. Errors are returned only
// for failures that end the run: the form definition or the rows could not
// be fetched. Row failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context) (*types.RunSummary, error) {
	runID := newRunID()
	log := p.logger.With(zap.String("run_id", runID))
	summary := &types.RunSummary{RunID: runID, DryRun: p.opts.DryRun}

	st := p.deps.Store.Load()
	log.Info("starting run", zap.String("last_run_date", st.LastRunDate), zap.Bool("dry_run", p.opts.DryRun))

	form, err := p.deps.Forms.FetchForm(ctx, p.opts.CloudID, p.opts.ServiceDeskID, p.opts.RequestTypeID)
	if err != nil {
		log.Error("could not fetch form definition", zap.Error(err))
		return summary, fmt.Errorf("fetch form definition: %w", err)
	}
	questions := mapping.ExtractQuestions(form)
	lookup := mapping.BuildChoiceLookup(questions)
	log.Debug("form definition loaded", zap.Int("questions", len(questions)), zap.Int("choice_questions", len(lookup)))

	rows, err := p.deps.Rows.FetchSince(ctx, st.LastRunDate)
	if err != nil {
		log.Error("could not read rows", zap.Error(err))
		return summary, fmt.Errorf("fetch rows: %w", err)
	}
	summary.Fetched = len(rows)

	eligible := tracking.SelectForProcessing(rows, st, p.opts.CreatedColumn, log)
	summary.Eligible = len(eligible)
	log.Info("rows selected", zap.Int("fetched", len(rows)), zap.Int("eligible", len(eligible)))

	today := transform.FormatDate(p.deps.Now())
	var submittedToday []string

	for _, row := range eligible {
		res := p.processRow(ctx, log, row, st, questions, lookup)
		switch res.outcome {
		case types.OutcomeSubmitted:
			summary.Submitted++
			if res.date == today {
				submittedToday = append(submittedToday, res.email)
			}
		case types.OutcomeFlagged:
			summary.Flagged++
		case types.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}

		if !p.opts.DryRun {
			p.save(log, st)
		}
	}

	if p.opts.DryRun {
		summary.LastRunDate = st.LastRunDate
		log.Info("dry run complete, tracking state not saved",
			zap.Int("would_submit", summary.Submitted),
			zap.Int("flagged", summary.Flagged))
		return summary, nil
	}

	tracking.Finalize(st, submittedToday, today)
	p.save(log, st)
	summary.LastRunDate = st.LastRunDate

	log.Info("run complete",
		zap.Int("submitted", summary.Submitted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("flagged", summary.Flagged),
		zap.Int("failed", summary.Failed),
		zap.String("last_run_date", st.LastRunDate),
		zap.Strings("processed_emails_same_date", st.ProcessedEmailsSameDate))
	return summary, nil
}

// processRow handles one eligible row. A panic is recovered and reported as
// a failed row.
func (p *Pipeline) processRow(ctx context.Context, log *zap.Logger, row types.Row, st *types.State, questions types.QuestionMap, lookup mapping.ChoiceLookup) (res rowResult) {
	res.email = row.Email()
	res.date = transform.ISODate(row.Get(p.opts.CreatedColumn))

	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected error processing row",
				zap.String("email", res.email),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res.outcome = types.OutcomeFailed
		}
	}()

	if res.email == "" {
		log.Warn("skipping row without email", zap.Any("row", map[string]any(row)))
		res.outcome = types.OutcomeSkipped
		return res
	}
	rlog := log.With(zap.String("email", res.email))

	if st.HasIssue(res.email) {
		rlog.Info("email already has a ticket, skipping", zap.String("ticket", st.EmailToIssue[res.email]))
		res.outcome = types.OutcomeSkipped
		return res
	}

	summary, description := p.ticketText(row, res.email)

	answers, ok := p.builder.Build(row, questions, lookup, st)
	if !ok {
		rlog.Info("row flagged, not submitting", zap.String("reason", st.FlaggedRequests[res.email]))
		res.outcome = types.OutcomeFlagged
		return res
	}

	if col := p.opts.Fields.MultiValue; col != "" {
		if qid := p.opts.Fields.Questions[col]; qid != "" {
			if raw := strings.TrimSpace(row.String(col)); raw != "" {
				if ids := mapping.MapMultiValue(raw, questions, qid); len(ids) > 0 {
					answers[qid] = types.ChoiceAnswer(ids...)
				}
			}
		}
	}

	in := jira.CreateRequestInput{
		ServiceDeskID: p.opts.ServiceDeskID,
		RequestTypeID: p.opts.RequestTypeID,
		Summary:       summary,
		Description:   description,
		Answers:       answers,
	}

	if p.opts.DryRun {
		body, err := jira.NewCreateRequestBody(in)
		if err != nil {
			rlog.Error("could not encode request", zap.Error(err))
			res.outcome = types.OutcomeFailed
			return res
		}
		rlog.Info("dry run: would create request", zap.ByteString("body", body))
		res.outcome = types.OutcomeSubmitted
		return res
	}

	ref, err := p.deps.Requests.CreateRequest(ctx, in)
	if err != nil {
		rlog.Error("failed creating request", zap.Error(err))
		res.outcome = types.OutcomeFailed
		return res
	}

	st.RecordIssue(res.email, ref)
	rlog.Info("created request", zap.String("ticket", ref))
	res.outcome = types.OutcomeSubmitted
	return res
}

// ticketText builds the request summary and description.
func (p *Pipeline) ticketText(row types.Row, email string) (string, string) {
	who := row.String(p.opts.Ticket.SummaryColumn)
	if who == "" {
		who = email
	}
	summary := who
	if p.opts.Ticket.SummaryPrefix != "" {
		summary = p.opts.Ticket.SummaryPrefix + " - " + who
	}

	var lines []string
	for _, col := range p.opts.Ticket.DescriptionColumns {
		if v := row.String(col); v != "" {
			lines = append(lines, col+": "+v)
		}
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = p.opts.Ticket.DefaultDescription
	}
	return summary, description
}

func (p *Pipeline) save(log *zap.Logger, st *types.State) {
	if err := p.deps.Store.Save(st); err != nil {
		log.Error("could not save tracking state", zap.Error(err))
	}
}

func newRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
