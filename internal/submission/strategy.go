package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pos-service/internal/ledger"

	"github.com/google/uuid"
)

const maxReplySize = 1 << 20

// Strategy delivers a payload to the ledger. It returns the ledger's message
// on success, an error built with Rejected or Unconfirmed when the chain must
// stop, and any other error for a transport failure.
type Strategy interface {
	Name() string
	Send(ctx context.Context, p Payload) (string, error)
}

// JSONStrategy posts the payload as a JSON document
type JSONStrategy struct {
	url    string
	client *http.Client
}

// NewJSONStrategy creates the primary strategy
func NewJSONStrategy(url string, client *http.Client) *JSONStrategy {
	return &JSONStrategy{url: url, client: client}
}

func (s *JSONStrategy) Name() string { return "json" }

// Send posts p as application/json. A 2xx body that is not a JSON object
// is treated as a transport failure.
func (s *JSONStrategy) Send(ctx context.Context, p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	answer, err := post(ctx, s.client, s.url, "application/json", p.OrderID, body)
	if err != nil {
		return "", err
	}

	r, ok := parseReply(answer)
	if !ok {
		return "", fmt.Errorf("unreadable reply: %q", truncate(answer))
	}
	return r.verdict()
}

// FormStrategy posts the payload form-encoded and accepts any reply body
type FormStrategy struct {
	url    string
	client *http.Client
}

// NewFormStrategy creates the fallback strategy
func NewFormStrategy(url string, client *http.Client) *FormStrategy {
	return &FormStrategy{url: url, client: client}
}

func (s *FormStrategy) Name() string { return "form" }

// Send posts p as application/x-www-form-urlencoded. A 2xx reply that cannot
// be read yields Unconfirmed, never success.
func (s *FormStrategy) Send(ctx context.Context, p Payload) (string, error) {
	form, err := p.Form()
	if err != nil {
		return "", fmt.Errorf("failed to encode form: %w", err)
	}

	answer, err := post(ctx, s.client, s.url, "application/x-www-form-urlencoded", p.OrderID, []byte(form.Encode()))
	if err != nil {
		return "", err
	}

	r, ok := parseReply(answer)
	if !ok {
		return "", Unconfirmed(fmt.Sprintf("opaque reply: %q", truncate(answer)))
	}
	return r.verdict()
}

// post performs the request and returns the body of a 2xx reply. Every
// error it returns is a transport failure.
func post(ctx context.Context, client *http.Client, url, contentType, orderID string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", orderID)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}
	return answer, nil
}

// reply is the ledger's answer to a submission
type reply struct {
	Success any
	Error   any
	Message any
}

func parseReply(body []byte) (reply, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return reply{}, false
	}
	return reply{Success: raw["success"], Error: raw["error"], Message: raw["message"]}, true
}

// verdict maps a readable reply to success or rejection. A present error
// field or a missing or falsy success flag is a rejection.
func (r reply) verdict() (string, error) {
	msg := ledger.ErrorText(r.Message)
	if reason := ledger.ErrorText(r.Error); reason != "" {
		return "", Rejected(reason)
	}
	if !truthy(r.Success) {
		if msg == "" {
			msg = "ledger did not confirm success"
		}
		return "", Rejected(msg)
	}
	return msg, nil
}

func truthy(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case float64:
		return s != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "false", "0", "no":
			return false
		}
		return true
	default:
		return false
	}
}

func truncate(b []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
