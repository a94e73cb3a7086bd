package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pos-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrBackendUnavailable = errors.New("ledger backend unavailable")
	ErrMalformedResponse  = errors.New("malformed ledger response")
)

const maxResponseBodySize = 4 << 20

// Client reads and writes sheet rows through the ledger web hook
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a ledger client for the given endpoint
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: util.GetLogger(),
	}
}

// rowsEnvelope is the object form of a rows response
type rowsEnvelope struct {
	Values [][]any `json:"values"`
	Error  any     `json:"error"`
}

// FetchRows retrieves the rows of sheet. The endpoint may answer with a bare
// JSON array of rows or with an object holding "values" or "error".
func (c *Client) FetchRows(ctx context.Context, sheet string) ([][]string, error) {
	ctx, span := util.StartSpan(ctx, "LedgerClient.FetchRows")
	defer span.End()

	endpoint, err := c.sheetURL(sheet)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched ledger rows",
		zap.String("sheet", sheet),
		zap.Int("count", len(rows)))
	return rows, nil
}

// ReplaceRows overwrites the rows of sheet
func (c *Client) ReplaceRows(ctx context.Context, sheet string, rows [][]string) error {
	ctx, span := util.StartSpan(ctx, "LedgerClient.ReplaceRows")
	defer span.End()

	body, err := json.Marshal(map[string]any{
		"action": "replaceRows",
		"sheet":  sheet,
		"values": rows,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) sheetURL(sheet string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base url: %v", ErrBackendUnavailable, err)
	}
	if sheet != "" {
		q := u.Query()
		q.Set("sheet", sheet)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func decodeRows(body []byte) ([][]string, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch v := raw.(type) {
	case []any:
		return toRows(v)
	case map[string]any:
		var env rowsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if msg := ErrorText(env.Error); msg != "" {
			return nil, fmt.Errorf("%w: remote error: %s", ErrBackendUnavailable, msg)
		}
		if _, ok := v["values"]; !ok {
			return nil, fmt.Errorf("%w: object without values", ErrMalformedResponse)
		}
		return cellsToStrings(env.Values), nil
	default:
		return nil, fmt.Errorf("%w: unexpected %T payload", ErrMalformedResponse, raw)
	}
}

func toRows(items []any) ([][]string, error) {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		cells, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T, not an array", ErrMalformedResponse, i, item)
		}
		rows = append(rows, cellsToStrings([][]any{cells})[0])
	}
	return rows, nil
}

func cellsToStrings(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, cells := range values {
		row := make([]string, len(cells))
		for j, cell := range cells {
			row[j] = cellText(cell)
		}
		rows[i] = row
	}
	return rows
}

func cellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ErrorText extracts a message from an "error" field that may be a string,
// an object with a message, or a bare boolean.
func ErrorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case bool:
		if e {
			return "error"
		}
		return ""
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
		b, _ := json.Marshal(e)
		return string(b)
	default:
		return fmt.Sprint(e)
	}
}
