// Package mapping turns a Jira form definition into lookup tables and maps
// raw column values onto choice IDs.
package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/daviddao/deskflow/internal/types"
)

// UnmatchedChoiceID is emitted for multi-value labels with no matching choice.
const UnmatchedChoiceID = "0"

// Normalize lower-cases a label and strips everything that is not a letter
// or digit, so "Cordless Handset" and "cordless-handset" compare equal.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range norm.NFC.String(strings.ToLower(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractQuestions pulls design.questions out of a form definition. Missing
// or malformed nesting yields an empty map; malformed entries are skipped.
func ExtractQuestions(form map[string]any) types.QuestionMap {
	out := types.QuestionMap{}
	design, ok := form["design"].(map[string]any)
	if !ok {
		return out
	}
	questions, ok := design["questions"].(map[string]any)
	if !ok {
		return out
	}

	for qid, raw := range questions {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		q := types.Question{}
		if tag, ok := obj["type"].(string); ok {
			q.Type = tag
		}
		q.Kind = types.ParseQuestionKind(q.Type)

		if list, ok := obj["choices"].([]any); ok {
			for _, c := range list {
				co, ok := c.(map[string]any)
				if !ok {
					continue
				}
				label, ok := co["label"].(string)
				if !ok {
					continue
				}
				id, ok := choiceID(co["id"])
				if !ok {
					continue
				}
				q.Choices = append(q.Choices, types.Choice{ID: id, Label: label})
			}
		}
		out[qid] = q
	}
	return out
}

// choiceID stringifies a choice id the way it appears in the form JSON.
func choiceID(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case bool, map[string]any, []any:
		return "", false
	default:
		return fmt.Sprint(id), true
	}
}

// ChoiceTable maps normalised labels to choice IDs for one question and
// remembers the order labels appeared in the schema.
type ChoiceTable struct {
	ids   map[string]string
	order []string
}

// NewChoiceTable builds a table from choices, skipping empty labels. A
// repeated normalised label keeps its first position and takes the later ID.
func NewChoiceTable(choices []types.Choice) *ChoiceTable {
	t := &ChoiceTable{ids: make(map[string]string, len(choices))}
	for _, c := range choices {
		if c.Label == "" {
			continue
		}
		t.put(Normalize(c.Label), c.ID)
	}
	return t
}

func (t *ChoiceTable) put(label, id string) {
	if _, ok := t.ids[label]; !ok {
		t.order = append(t.order, label)
	}
	t.ids[label] = id
}

// Len returns the number of distinct labels.
func (t *ChoiceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Lookup returns the choice ID for an already-normalised label.
func (t *ChoiceTable) Lookup(normalized string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.ids[normalized]
	return id, ok && id != ""
}

// Match finds a choice ID for a normalised token: exact label first, then
// the first label (in schema order) that contains the token or is contained
// by it.
func (t *ChoiceTable) Match(normalized string) (string, bool) {
	if t == nil || normalized == "" {
		return "", false
	}
	if id, ok := t.Lookup(normalized); ok {
		return id, true
	}
	for _, label := range t.order {
		if strings.Contains(label, normalized) || strings.Contains(normalized, label) {
			return t.ids[label], true
		}
	}
	return "", false
}

// ChoiceLookup maps question ID to its choice table.
type ChoiceLookup map[string]*ChoiceTable

// BuildChoiceLookup builds a table for every question that has at least one
// usable choice; other questions are left out.
func BuildChoiceLookup(questions types.QuestionMap) ChoiceLookup {
	out := ChoiceLookup{}
	for qid, q := range questions {
		if len(q.Choices) == 0 {
			continue
		}
		if t := NewChoiceTable(q.Choices); t.Len() > 0 {
			out[qid] = t
		}
	}
	return out
}

// MapMultiValue maps a semicolon-delimited list of labels onto the choice
// IDs of one question. Unknown labels become UnmatchedChoiceID; repeated IDs
// are dropped, keeping first-seen order.
func MapMultiValue(raw string, questions types.QuestionMap, questionID string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	labels := map[string]string{}
	for _, c := range questions[questionID].Choices {
		labels[Normalize(c.Label)] = c.ID
	}

	seen := map[string]bool{}
	out := []string{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id := labels[Normalize(part)]
		if id == "" {
			id = UnmatchedChoiceID
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
