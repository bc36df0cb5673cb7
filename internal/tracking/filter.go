package tracking

import (
	"sort"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/transform"
	"github.com/daviddao/deskflow/internal/types"
)

// SelectForProcessing returns the rows that still need work, in input order.
//
// Rows whose creation date cannot be read are always skipped. With no
// watermark every other row is eligible. Otherwise rows dated after the
// watermark are eligible, rows dated on it are eligible only if their identity
// key was not already submitted that day, and older rows are skipped.
func SelectForProcessing(rows []types.Row, st *types.State, createdCol string, logger *zap.Logger) []types.Row {
	if logger == nil {
		logger = zap.NewNop()
	}
	if st == nil {
		st = types.DefaultState()
	}

	processed := make(map[string]bool, len(st.ProcessedEmailsSameDate))
	for _, e := range st.ProcessedEmailsSameDate {
		processed[e] = true
	}

	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		day := transform.ISODate(row.Get(createdCol))
		if day == "" {
			logger.Warn("skipping row with unreadable creation date",
				zap.String("email", row.Email()),
				zap.Any(createdCol, row.Get(createdCol)))
			continue
		}

		switch {
		case st.LastRunDate == "":
			out = append(out, row)
		case day > st.LastRunDate:
			out = append(out, row)
		case day == st.LastRunDate:
			email := row.Email()
			if email == "" {
				logger.Warn("skipping same-day row without identity key", zap.String("date", day))
				continue
			}
			if processed[email] {
				logger.Debug("already submitted today", zap.String("email", email))
				continue
			}
			out = append(out, row)
		default:
			logger.Debug("skipping row older than watermark", zap.String("date", day))
		}
	}
	return out
}

// Finalize moves the watermark to today and records which identity keys were
// submitted for rows dated today. A today earlier than the current watermark
// leaves the state as it is so the watermark never moves backwards.
func Finalize(st *types.State, submittedToday []string, today string) *types.State {
	if st == nil {
		st = types.DefaultState()
	}
	if st.LastRunDate != "" && today < st.LastRunDate {
		return st
	}

	seen := make(map[string]bool, len(submittedToday))
	keys := make([]string, 0, len(submittedToday))
	for _, k := range submittedToday {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	st.LastRunDate = today
	st.ProcessedEmailsSameDate = keys
	return st
}
