package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Tracking file keys.
const (
	KeyLastRunDate             = "last_run_date"
	KeyProcessedEmailsSameDate = "processed_emails_same_date"
	KeyEmailToIssue            = "email_to_issue"
	KeyFlaggedRequests         = "flagged_requests"
)

// State is the persisted tracking state of the pipeline.
//
// LastRunDate is the watermark (YYYY-MM-DD, "" before the first run).
// ProcessedEmailsSameDate holds identity keys submitted on LastRunDate.
// EmailToIssue is append-only: once a key has a ticket it is never replaced.
// FlaggedRequests records the latest rejection reason per identity key.
type State struct {
	LastRunDate             string
	ProcessedEmailsSameDate []string
	EmailToIssue            map[string]string
	FlaggedRequests         map[string]string

	// extra holds top-level keys this version does not know about, so they
	// survive a load/save cycle.
	extra map[string]json.RawMessage
}

// DefaultState returns the state used on a first run or when the tracking
// file cannot be read.
func DefaultState() *State {
	return &State{
		ProcessedEmailsSameDate: []string{},
		EmailToIssue:            map[string]string{},
		FlaggedRequests:         map[string]string{},
	}
}

// HasIssue reports whether a ticket is already on file for the key.
func (s *State) HasIssue(email string) bool {
	_, ok := s.EmailToIssue[email]
	return ok
}

// RecordIssue stores the ticket reference for a key unless one exists.
// It reports whether the reference was stored.
func (s *State) RecordIssue(email, ref string) bool {
	if s.EmailToIssue == nil {
		s.EmailToIssue = map[string]string{}
	}
	if _, ok := s.EmailToIssue[email]; ok {
		return false
	}
	s.EmailToIssue[email] = ref
	return true
}

// Flag records a rejection reason for a key, replacing any earlier one.
func (s *State) Flag(email, reason string) {
	if s.FlaggedRequests == nil {
		s.FlaggedRequests = map[string]string{}
	}
	s.FlaggedRequests[email] = reason
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		LastRunDate:             s.LastRunDate,
		ProcessedEmailsSameDate: append([]string{}, s.ProcessedEmailsSameDate...),
		EmailToIssue:            make(map[string]string, len(s.EmailToIssue)),
		FlaggedRequests:         make(map[string]string, len(s.FlaggedRequests)),
	}
	for k, v := range s.EmailToIssue {
		c.EmailToIssue[k] = v
	}
	for k, v := range s.FlaggedRequests {
		c.FlaggedRequests[k] = v
	}
	if len(s.extra) > 0 {
		c.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			c.extra[k] = append(json.RawMessage{}, v...)
		}
	}
	return c
}

// MarshalJSON writes the four tracking keys plus any preserved unknown keys.
func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4+len(s.extra))
	for k, v := range s.extra {
		out[k] = v
	}
	if s.LastRunDate == "" {
		out[KeyLastRunDate] = nil
	} else {
		out[KeyLastRunDate] = s.LastRunDate
	}
	processed := s.ProcessedEmailsSameDate
	if processed == nil {
		processed = []string{}
	}
	out[KeyProcessedEmailsSameDate] = processed
	out[KeyEmailToIssue] = nonNilMap(s.EmailToIssue)
	out[KeyFlaggedRequests] = nonNilMap(s.FlaggedRequests)
	return json.Marshal(out)
}

// UnmarshalJSON reads a tracking document. See DecodeState.
func (s *State) UnmarshalJSON(data []byte) error {
	st, _, err := DecodeState(data)
	if err != nil {
		return err
	}
	*s = *st
	return nil
}

// DecodeState reads a tracking document. Only a body that is not a JSON
// object is an error. Missing or null keys take their default value, and a
// known key holding the wrong type is defaulted on its own and reported in
// the returned list. Scalar ticket references and reasons (numbers, bools)
// are kept as their text. Unknown keys are preserved.
func DecodeState(data []byte) (*State, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("tracking document is not an object")
	}

	st := DefaultState()
	var defaulted []string
	for key, val := range raw {
		ok := true
		switch key {
		case KeyLastRunDate:
			var d any
			if err := json.Unmarshal(val, &d); err != nil {
				ok = false
				break
			}
			switch v := d.(type) {
			case nil:
			case string:
				st.LastRunDate = v
			default:
				ok = false
			}
		case KeyProcessedEmailsSameDate:
			var list []json.RawMessage
			if err := json.Unmarshal(val, &list); err != nil {
				ok = false
				break
			}
			for _, item := range list {
				if s, isScalar := scalarText(item); isScalar && s != "" {
					st.ProcessedEmailsSameDate = append(st.ProcessedEmailsSameDate, s)
				}
			}
		case KeyEmailToIssue:
			ok = decodeTextMap(val, st.EmailToIssue)
		case KeyFlaggedRequests:
			ok = decodeTextMap(val, st.FlaggedRequests)
		default:
			if st.extra == nil {
				st.extra = map[string]json.RawMessage{}
			}
			st.extra[key] = append(json.RawMessage{}, val...)
		}
		if !ok {
			defaulted = append(defaulted, key)
		}
	}
	sort.Strings(defaulted)
	return st, defaulted, nil
}

// decodeTextMap fills dst from a JSON object whose values are kept as text.
// Every key survives: null becomes "" and nested values keep their JSON text.
// It reports false when val is not an object.
func decodeTextMap(val json.RawMessage, dst map[string]string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(val, &m); err != nil {
		return false
	}
	for k, v := range m {
		if s, ok := scalarText(v); ok {
			dst[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			dst[k] = string(v)
			continue
		}
		dst[k] = buf.String()
	}
	return true
}

// scalarText renders a JSON string, number, bool or null as text. Objects
// and arrays report false.
func scalarText(v json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return "", false
	}
	switch t := x.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
