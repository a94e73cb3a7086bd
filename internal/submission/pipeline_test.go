package submission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oilFilterLines() []models.CartLine {
	price := decimal.RequireFromString("12.99")
	return []models.CartLine{{
		ProductID:   "R001",
		Description: "Filtro de Aceite",
		UnitPrice:   price,
		Quantity:    2,
		LineTotal:   price.Mul(decimal.NewFromInt(2)),
	}}
}

// ledgerServer answers JSON and form posts with separate handlers and counts
// the calls each one receives
type ledgerServer struct {
	*httptest.Server
	jsonCalls atomic.Int32
	formCalls atomic.Int32
	lastForm  atomic.Value
}

func newLedgerServer(t *testing.T, onJSON, onForm http.HandlerFunc) *ledgerServer {
	t.Helper()
	ls := &ledgerServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Content-Type") {
		case "application/json":
			ls.jsonCalls.Add(1)
			onJSON(w, r)
		case "application/x-www-form-urlencoded":
			ls.formCalls.Add(1)
			require.NoError(t, r.ParseForm())
			ls.lastForm.Store(r.PostForm)
			onForm(w, r)
		default:
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
	}))
	t.Cleanup(ls.Close)
	return ls
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

func TestSubmit_JSONAck(t *testing.T) {
	var got Payload
	var headers http.Header
	ls := newLedgerServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			headers = r.Header.Clone()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = io.WriteString(w, `{"success":true,"message":"saved"}`)
		},
		respond(http.StatusOK, `{"success":true}`),
	)

	p := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second})
	ack, err := p.Submit(context.Background(), "TG-0000001", "  Ana  ", oilFilterLines())
	require.NoError(t, err)

	assert.Equal(t, "json", ack.Strategy)
	assert.Equal(t, "saved", ack.Message)
	assert.Equal(t, "Ana", ack.Order.Seller)
	assert.True(t, decimal.RequireFromString("25.98").Equal(ack.Order.Total))
	assert.Equal(t, int32(0), ls.formCalls.Load())

	assert.Equal(t, "TG-0000001", got.OrderID)
	assert.Equal(t, "25.98", got.Total.String())
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "12.99", got.Lines[0].UnitPrice.String())
	assert.Equal(t, "TG-0000001", headers.Get("Idempotency-Key"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))
}

func TestSubmit_FallsBackToFormOnTransportFailure(t *testing.T) {
	ls := newLedgerServer(t,
		respond(http.StatusBadGateway, `upstream down`),
		respond(http.StatusOK, `{"success":true,"message":"ok"}`),
	)

	ack, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
	require.NoError(t, err)

	assert.Equal(t, "form", ack.Strategy)
	assert.Equal(t, "form", ack.Order.Strategy)
	require.Len(t, ack.Attempts, 2)
	assert.Equal(t, OutcomeTransport, ack.Attempts[0].Outcome)
	assert.Equal(t, OutcomeAcked, ack.Attempts[1].Outcome)
	assert.Equal(t, int32(1), ls.jsonCalls.Load())
	assert.Equal(t, int32(1), ls.formCalls.Load())

	form := ls.lastForm.Load().(url.Values)
	assert.Equal(t, "TG-0000001", form.Get("orderId"))
	assert.Equal(t, "25.98", form.Get("total"))
	assert.Contains(t, form.Get("lines"), `"description":"Filtro de Aceite"`)
}

func TestSubmit_UnreadableJSONReplyFallsBack(t *testing.T) {
	ls := newLedgerServer(t,
		respond(http.StatusOK, `<html>moved</html>`),
		respond(http.StatusOK, `{"success":"true"}`),
	)

	ack, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
	require.NoError(t, err)
	assert.Equal(t, "form", ack.Strategy)
}

func TestSubmit_RejectionIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"error field", `{"error":"sheet locked"}`, "sheet locked"},
		{"success false", `{"success":false,"message":"duplicate id"}`, "duplicate id"},
		{"success missing", `{"result":"maybe"}`, "ledger did not confirm success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls := newLedgerServer(t, respond(http.StatusOK, tt.body), respond(http.StatusOK, `{"success":true}`))

			_, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
				Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())

			require.ErrorIs(t, err, ErrRemoteRejected)
			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.reason, se.Reason)
			assert.Equal(t, int32(0), ls.formCalls.Load(), "a rejection must not fall back")
		})
	}
}

func TestSubmit_OpaqueFormReplyIsUnconfirmed(t *testing.T) {
	ls := newLedgerServer(t,
		respond(http.StatusInternalServerError, ``),
		respond(http.StatusOK, `Thanks!`),
	)

	ack, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())

	assert.Nil(t, ack)
	require.ErrorIs(t, err, ErrUnconfirmed)
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Attempts, 2)
	assert.Equal(t, OutcomeUnconfirmed, se.Attempts[1].Outcome)
}

func TestSubmit_TransportExhausted(t *testing.T) {
	ls := newLedgerServer(t,
		respond(http.StatusServiceUnavailable, ``),
		respond(http.StatusNotFound, ``),
	)

	_, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())

	require.ErrorIs(t, err, ErrTransportExhausted)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestSubmit_Timeout(t *testing.T) {
	ls := newLedgerServer(t, hang, hang)

	_, err := NewHTTPPipeline(ls.URL, Config{Timeout: 50 * time.Millisecond}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())

	require.ErrorIs(t, err, ErrTimeout)
	var se *Error
	require.True(t, errors.As(err, &se))
	for _, a := range se.Attempts {
		assert.Equal(t, OutcomeTimeout, a.Outcome)
	}
}

func TestSubmit_TimeoutThenFallbackAck(t *testing.T) {
	ls := newLedgerServer(t, hang, respond(http.StatusOK, `{"success":true}`))

	ack, err := NewHTTPPipeline(ls.URL, Config{Timeout: 50 * time.Millisecond}).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, ack.Attempts[0].Outcome)
}

func TestSubmit_InvalidOrderMakesNoCalls(t *testing.T) {
	ls := newLedgerServer(t, respond(http.StatusOK, `{"success":true}`), respond(http.StatusOK, `{"success":true}`))
	p := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second})

	zeroQty := oilFilterLines()
	zeroQty[0].Quantity = 0

	cases := map[string]func() error{
		"no lines":  func() error { _, err := p.Submit(context.Background(), "TG-0000001", "Ana", nil); return err },
		"no seller": func() error { _, err := p.Submit(context.Background(), "TG-0000001", "   ", oilFilterLines()); return err },
		"no id":     func() error { _, err := p.Submit(context.Background(), "", "Ana", oilFilterLines()); return err },
		"zero qty":  func() error { _, err := p.Submit(context.Background(), "TG-0000001", "Ana", zeroQty); return err },
	}
	for name, submit := range cases {
		assert.ErrorIs(t, submit(), ErrInvalidOrder, name)
	}

	assert.Equal(t, int32(0), ls.jsonCalls.Load()+ls.formCalls.Load())
}

func TestSubmit_DoesNotMutateLines(t *testing.T) {
	ls := newLedgerServer(t, respond(http.StatusOK, `{"success":true}`), respond(http.StatusOK, ``))
	lines := oilFilterLines()

	ack, err := NewHTTPPipeline(ls.URL, Config{Timeout: time.Second}).
		Submit(context.Background(), "TG-0000001", "Ana", lines)
	require.NoError(t, err)

	ack.Order.Lines[0].Quantity = 99
	assert.Equal(t, oilFilterLines(), lines)
}

func TestSubmit_BreakerSkipsFailingStrategy(t *testing.T) {
	ls := newLedgerServer(t,
		respond(http.StatusInternalServerError, ``),
		respond(http.StatusOK, `{"success":true}`),
	)
	p := NewHTTPPipeline(ls.URL, Config{
		Timeout:         time.Second,
		BreakerFailures: 1,
		BreakerCooldown: time.Minute,
	})

	_, err := p.Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
	require.NoError(t, err)

	ack, err := p.Submit(context.Background(), "TG-0000002", "Ana", oilFilterLines())
	require.NoError(t, err)

	assert.Equal(t, OutcomeBreakerOpen, ack.Attempts[0].Outcome)
	assert.Equal(t, int32(1), ls.jsonCalls.Load())
	assert.Equal(t, int32(2), ls.formCalls.Load())
}

func TestSubmit_RejectionDoesNotTripBreaker(t *testing.T) {
	ls := newLedgerServer(t, respond(http.StatusOK, `{"success":false}`), respond(http.StatusOK, ``))
	p := NewHTTPPipeline(ls.URL, Config{
		Timeout:         time.Second,
		BreakerFailures: 1,
		BreakerCooldown: time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := p.Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
		require.ErrorIs(t, err, ErrRemoteRejected)
	}
	assert.Equal(t, int32(3), ls.jsonCalls.Load())
}

type stubStrategy struct {
	name  string
	calls int
	err   error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Send(ctx context.Context, p Payload) (string, error) {
	s.calls++
	return "stub", s.err
}

func TestPipeline_StrategyOrder(t *testing.T) {
	first := &stubStrategy{name: "first", err: errors.New("connection reset")}
	second := &stubStrategy{name: "second", err: errors.New("no route to host")}
	third := &stubStrategy{name: "third"}

	ack, err := NewPipeline(Config{}, first, second, third).
		Submit(context.Background(), "TG-0000001", "Ana", oilFilterLines())
	require.NoError(t, err)

	assert.Equal(t, "third", ack.Strategy)
	assert.Equal(t, []int{1, 1, 1}, []int{first.calls, second.calls, third.calls})
}

func TestReplyVerdict(t *testing.T) {
	for body, ok := range map[string]bool{
		`{"success":true}`:   true,
		`{"success":1}`:      true,
		`{"success":"ok"}`:   true,
		`{"success":"no"}`:   false,
		`{"success":0}`:      false,
		`{"success":null}`:   false,
		`{"success":true,"error":{"message":"x"}}`: false,
	} {
		r, parsed := parseReply([]byte(body))
		require.True(t, parsed, body)
		_, err := r.verdict()
		assert.Equal(t, ok, err == nil, body)
	}

	_, parsed := parseReply([]byte(`null`))
	assert.False(t, parsed)
	_, parsed = parseReply([]byte(strings.Repeat("x", 10)))
	assert.False(t, parsed)
}
