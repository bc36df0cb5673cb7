package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/mapping"
	"github.com/daviddao/deskflow/internal/types"
)

// Flag reasons recorded in the tracking state.
const (
	ReasonInvalidTimeframe = "Invalid timeframe: "
	ReasonMissingDates     = "Missing date(s) for temporary request"
	ReasonDateOrder        = "approximateendingdate <= dateneededby"
)

// Normalised timeframe labels with special handling.
const (
	timeframeTemporary = "temporary"
	timeframePermanent = "permanent"
)

// FieldMap says which source columns feed which form questions, and which
// columns carry the timeframe, the two request dates and the multi-value
// equipment list.
type FieldMap struct {
	Questions  map[string]string // column -> question ID
	Timeframe  string
	NeededBy   string
	EndingDate string
	MultiValue string
}

// FieldMapFromConfig builds a FieldMap from the fields section of the config.
func FieldMapFromConfig(c config.FieldsConfig) FieldMap {
	return FieldMap{
		Questions:  c.Questions,
		Timeframe:  c.TimeframeColumn,
		NeededBy:   c.NeededByColumn,
		EndingDate: c.EndingDateColumn,
		MultiValue: c.MultiValueColumn,
	}
}

// Builder validates rows and turns them into form answers.
type Builder struct {
	fields  FieldMap
	columns []string // mapped columns in a stable order
	logger  *zap.Logger
}

// NewBuilder returns a Builder for the given field mapping.
func NewBuilder(fields FieldMap, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	cols := make([]string, 0, len(fields.Questions))
	for col := range fields.Questions {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return &Builder{fields: fields, columns: cols, logger: logger}
}

// Build validates row and returns its answers. When the row fails
// validation the reason is recorded in st.FlaggedRequests under the row's
// identity key and Build reports false.
//
// The multi-value column is not handled here; see mapping.MapMultiValue.
func (b *Builder) Build(row types.Row, questions types.QuestionMap, lookup mapping.ChoiceLookup, st *types.State) (types.Answers, bool) {
	email := row.Email()
	answers := types.Answers{}

	tfQID := b.fields.Questions[b.fields.Timeframe]
	tfRaw := strings.TrimSpace(row.String(b.fields.Timeframe))
	tfNorm := mapping.Normalize(tfRaw)
	tfID, ok := lookup[tfQID].Lookup(tfNorm)
	if !ok {
		b.logger.Warn("could not map timeframe", zap.String("email", email), zap.String("timeframe", tfRaw))
		b.flag(st, email, ReasonInvalidTimeframe+tfRaw)
		return nil, false
	}
	answers[tfQID] = types.ChoiceAnswer(tfID)

	skip := map[string]bool{
		b.fields.Timeframe:  true,
		b.fields.MultiValue: true,
	}

	switch tfNorm {
	case timeframeTemporary:
		needed, okNeeded := ToDate(row.Get(b.fields.NeededBy))
		ending, okEnding := ToDate(row.Get(b.fields.EndingDate))
		if !okNeeded || !okEnding {
			b.logger.Warn("temporary request missing dates", zap.String("email", email))
			b.flag(st, email, ReasonMissingDates)
			return nil, false
		}
		if !ending.After(needed) {
			b.logger.Warn("temporary request ends before it is needed",
				zap.String("email", email),
				zap.String("needed_by", FormatDate(needed)),
				zap.String("ending", FormatDate(ending)))
			b.flag(st, email, ReasonDateOrder)
			return nil, false
		}
	case timeframePermanent:
		skip[b.fields.EndingDate] = true
	}

	for _, col := range b.columns {
		if skip[col] {
			continue
		}
		value := row.Get(col)
		if value == nil {
			continue
		}
		qid := b.fields.Questions[col]
		q := questions[qid]

		switch q.Kind {
		case types.KindText:
			answers[qid] = types.TextAnswer(textOf(value))
		case types.KindDate:
			if d, ok := ToDate(value); ok {
				answers[qid] = types.DateAnswer(FormatDate(d))
			} else {
				answers[qid] = types.DateAnswer(textOf(value))
			}
		case types.KindSingleChoice, types.KindMultiChoice:
			ids := matchChoices(value, lookup[qid])
			if len(ids) == 0 {
				b.logger.Debug("no choice matched", zap.String("email", email), zap.String("column", col))
				continue
			}
			answers[qid] = types.ChoiceAnswer(ids...)
		case types.KindUnknown:
			answers[qid] = types.TextAnswer(textOf(value))
		default:
			answers[qid] = types.TextAnswer(textOf(value))
		}
	}
	return answers, true
}

func (b *Builder) flag(st *types.State, email, reason string) {
	if st == nil {
		return
	}
	st.Flag(email, reason)
}

// matchChoices resolves each token of a choice value against the table.
// Tokens come from a native list or a comma-separated string; tokens that
// match nothing are dropped.
func matchChoices(value any, table *mapping.ChoiceTable) []string {
	var ids []string
	for _, tok := range choiceTokens(value) {
		norm := mapping.Normalize(tok)
		if norm == "" {
			continue
		}
		if id, ok := table.Match(norm); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func choiceTokens(value any) []string {
	var raw []string
	switch v := value.(type) {
	case []string:
		raw = v
	case []any:
		for _, x := range v {
			if x == nil {
				continue
			}
			raw = append(raw, textOf(x))
		}
	default:
		raw = strings.Split(textOf(v), ",")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func textOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return formatTimestamp(s)
	case *time.Time:
		if s == nil {
			return ""
		}
		return formatTimestamp(*s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatTimestamp renders a timestamp without zone, with microseconds only
// when present.
func formatTimestamp(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02 15:04:05.000000")
	}
	return t.Format("2006-01-02 15:04:05")
}
