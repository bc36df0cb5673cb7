package types

import (
	"encoding/json"
	"errors"
)

// AnswerKind selects which field of an Answer is populated.
type AnswerKind int

const (
	AnswerText AnswerKind = iota
	AnswerDate
	AnswerChoices
)

// Answer is a typed form answer: free text, an ISO date, or a list of
// choice IDs. Exactly one shape is rendered on the wire.
type Answer struct {
	Kind    AnswerKind
	Text    string
	Date    string
	Choices []string
}

// Answers maps question ID to answer; it is the form.answers payload.
type Answers map[string]Answer

// TextAnswer returns a free-text answer.
func TextAnswer(s string) Answer { return Answer{Kind: AnswerText, Text: s} }

// DateAnswer returns a date answer; d is normally YYYY-MM-DD.
func DateAnswer(d string) Answer { return Answer{Kind: AnswerDate, Date: d} }

// ChoiceAnswer returns a choice answer holding the given choice IDs.
func ChoiceAnswer(ids ...string) Answer { return Answer{Kind: AnswerChoices, Choices: ids} }

type answerWire struct {
	Text    *string  `json:"text,omitempty"`
	Date    *string  `json:"date,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerText:
		return json.Marshal(answerWire{Text: &a.Text})
	case AnswerDate:
		return json.Marshal(answerWire{Date: &a.Date})
	case AnswerChoices:
		ids := a.Choices
		if ids == nil {
			ids = []string{}
		}
		return json.Marshal(struct {
			Choices []string `json:"choices"`
		}{ids})
	default:
		return nil, errors.New("answer has no kind")
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var w answerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Choices != nil:
		*a = ChoiceAnswer(w.Choices...)
	case w.Date != nil:
		*a = DateAnswer(*w.Date)
	case w.Text != nil:
		*a = TextAnswer(*w.Text)
	default:
		return errors.New("answer has none of text, date, choices")
	}
	return nil
}
