package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/types"
)

// maxReferenceLen bounds the fallback ticket reference.
const maxReferenceLen = 200

// CreateRequestInput is one customer request to create.
type CreateRequestInput struct {
	ServiceDeskID string
	RequestTypeID string
	Summary       string
	Description   string
	Answers       types.Answers
}

type createRequestBody struct {
	Form               formAnswers        `json:"form"`
	IsAdfRequest       bool               `json:"isAdfRequest"`
	RequestFieldValues requestFieldValues `json:"requestFieldValues"`
	RequestTypeID      string             `json:"requestTypeId"`
	ServiceDeskID      string             `json:"serviceDeskId"`
}

type formAnswers struct {
	Answers types.Answers `json:"answers"`
}

type requestFieldValues struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

// NewCreateRequestBody renders the JSON body of a create-request call.
func NewCreateRequestBody(in CreateRequestInput) ([]byte, error) {
	answers := in.Answers
	if answers == nil {
		answers = types.Answers{}
	}
	return json.Marshal(createRequestBody{
		Form:         formAnswers{Answers: answers},
		IsAdfRequest: false,
		RequestFieldValues: requestFieldValues{
			Summary:     in.Summary,
			Description: in.Description,
		},
		RequestTypeID: in.RequestTypeID,
		ServiceDeskID: in.ServiceDeskID,
	})
}

// CreateRequest creates a customer request with its form answers and
// returns the ticket reference. It makes exactly one attempt; any status
// other than 200 or 201 is returned as a *StatusError.
func (c *Client) CreateRequest(ctx context.Context, in CreateRequestInput) (string, error) {
	if in.ServiceDeskID == "" || in.RequestTypeID == "" {
		return "", fmt.Errorf("%w: service desk ID and request type ID are required", ErrInvalidInput)
	}

	payload, err := NewCreateRequestBody(in)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.siteURL + "/rest/servicedeskapi/request"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("read create response: %w", err)
	}
	if !okStatus(resp.StatusCode) {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		// The request exists; keep whatever Jira sent as the reference.
		c.logger.Warn("create response is not a JSON object", zap.Int("status", resp.StatusCode))
		return truncate(string(body), maxReferenceLen), nil
	}
	return TicketReference(out), nil
}

// TicketReference picks the ticket identifier out of a create-request
// response: issueKey, request.issueKey, key, requestNumber, and finally the
// first 200 characters of the response itself.
func TicketReference(resp map[string]any) string {
	if s, ok := refString(resp["issueKey"]); ok {
		return s
	}
	if req, ok := resp["request"].(map[string]any); ok {
		if s, ok := refString(req["issueKey"]); ok {
			return s
		}
	}
	for _, k := range []string{"key", "requestNumber"} {
		if s, ok := refString(resp[k]); ok {
			return s
		}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return truncate(fmt.Sprint(resp), maxReferenceLen)
	}
	return truncate(string(raw), maxReferenceLen)
}

func refString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case json.Number:
		return s.String(), s.String() != "" && s.String() != "0"
	case float64:
		if s == 0 {
			return "", false
		}
		return fmt.Sprint(s), true
	default:
		return "", false
	}
}
