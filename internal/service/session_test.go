package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/submission"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu      sync.Mutex
	pushed  [][]models.Product
	pushErr error
}

func (f *fakeCatalog) LoadOrFallback(ctx context.Context) *catalog.Snapshot {
	return catalog.NewSnapshot(catalog.ExampleProducts(), models.SourceRemote)
}

func (f *fakeCatalog) HistoryOrFallback(ctx context.Context) ([]models.OrderHistoryRow, string) {
	return catalog.ExampleHistory(), models.SourceFallback
}

func (f *fakeCatalog) PushStock(ctx context.Context, products []models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, products)
	return f.pushErr
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []string
	lines   [][]models.CartLine
	err     error
	release chan struct{}
	entered chan struct{}
	after   func()
}

func (f *fakeSubmitter) Submit(ctx context.Context, orderID, seller string, lines []models.CartLine) (*submission.Ack, error) {
	f.mu.Lock()
	f.calls = append(f.calls, orderID)
	f.lines = append(f.lines, lines)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.after != nil {
		f.after()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &submission.Ack{
		Order:    models.Order{ID: orderID, Seller: seller, Lines: lines, Total: cart.Sum(lines)},
		Strategy: "json",
	}, nil
}

type fakeTokens struct {
	mu        sync.Mutex
	token     string
	submitted map[string]bool
}

func (f *fakeTokens) InitToken(ctx context.Context, start string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		f.token = start
	}
	return f.token, nil
}

func (f *fakeTokens) AdvanceToken(ctx context.Context, expected, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != expected {
		return false, nil
	}
	f.token = next
	return true, nil
}

func (f *fakeTokens) MarkSubmitted(ctx context.Context, orderID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitted == nil {
		f.submitted = make(map[string]bool)
	}
	f.submitted[orderID] = true
	return nil
}

func (f *fakeTokens) IsSubmitted(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[orderID], nil
}

type fakeJournal struct {
	orders map[string]models.Order
	err    error
}

func (f *fakeJournal) SaveOrder(ctx context.Context, order models.Order) error {
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.orders == nil {
		f.orders = make(map[string]models.Order)
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeJournal) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &o, nil
}

func (f *fakeJournal) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	out := make([]models.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

type fakeEvents struct {
	submitted []string
	failed    []string
}

func (f *fakeEvents) PublishOrderSubmitted(ctx context.Context, order models.Order, strategy, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.submitted = append(f.submitted, order.ID)
	return nil
}

func (f *fakeEvents) PublishSubmissionFailed(ctx context.Context, orderID, seller, kind, reason string) error {
	f.failed = append(f.failed, orderID+":"+kind)
	return nil
}

type fixture struct {
	session   *Session
	catalog   *fakeCatalog
	submitter *fakeSubmitter
	tokens    *fakeTokens
	journal   *fakeJournal
	events    *fakeEvents
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   &fakeCatalog{},
		submitter: &fakeSubmitter{},
		tokens:    &fakeTokens{},
		journal:   &fakeJournal{},
		events:    &fakeEvents{},
	}
	if cfg.StartToken == "" {
		cfg.StartToken = "TG-0000001"
	}

	s, err := NewSession(cfg, Deps{
		Catalog:   f.catalog,
		Submitter: f.submitter,
		Tokens:    f.tokens,
		Journal:   f.journal,
		Events:    f.events,
	})
	require.NoError(t, err)
	s.Start(context.Background())
	f.session = s
	return f
}

func TestNewSession_RejectsMalformedStartToken(t *testing.T) {
	_, err := NewSession(Config{StartToken: "TG0001"}, Deps{Catalog: &fakeCatalog{}, Submitter: &fakeSubmitter{}})
	assert.Error(t, err)
}

func TestStart_RestoresPersistedToken(t *testing.T) {
	tokens := &fakeTokens{token: "TG-0000040"}
	s, err := NewSession(Config{StartToken: "TG-0000001"}, Deps{
		Catalog: &fakeCatalog{}, Submitter: &fakeSubmitter{}, Tokens: tokens,
	})
	require.NoError(t, err)

	s.Start(context.Background())
	assert.Equal(t, "TG-0000040", s.CurrentToken())
	assert.Len(t, s.Snapshot().Products, 5)
}

func TestFinalize_AckAdvancesEverything(t *testing.T) {
	f := newFixture(t, Config{PushStock: true})
	s := f.session

	require.NoError(t, s.AddLine("R001", 2))
	require.NoError(t, s.AddLine("R003", 5))

	ack, err := s.Finalize(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Equal(t, "TG-0000001", ack.Order.ID)

	assert.Equal(t, []string{"TG-0000001"}, f.submitter.calls)
	assert.Equal(t, "TG-0000002", s.CurrentToken())
	assert.Equal(t, "TG-0000002", f.tokens.token)
	assert.True(t, f.tokens.submitted["TG-0000001"])
	assert.Empty(t, s.Cart().Lines)

	p, _ := s.Snapshot().Find("R001")
	assert.Equal(t, 23, p.CurrentStock)
	p, _ = s.Snapshot().Find("R003")
	assert.Equal(t, 40, p.EndingStock)

	assert.Contains(t, f.journal.orders, "TG-0000001")
	assert.Equal(t, []string{"TG-0000001"}, f.events.submitted)
	require.Len(t, f.catalog.pushed, 1)
}

func TestFinalize_FailureChangesNothing(t *testing.T) {
	f := newFixture(t, Config{})
	s := f.session
	f.submitter.err = &submission.Error{Kind: submission.ErrTransportExhausted}

	require.NoError(t, s.AddLine("R001", 2))
	before := s.Snapshot()

	_, err := s.Finalize(context.Background(), "Ana")
	require.ErrorIs(t, err, submission.ErrTransportExhausted)

	assert.Equal(t, "TG-0000001", s.CurrentToken())
	assert.Equal(t, "TG-0000001", f.tokens.token)
	assert.Len(t, s.Cart().Lines, 1)
	assert.Same(t, before, s.Snapshot())
	assert.Empty(t, f.journal.orders)
	assert.Equal(t, []string{"TG-0000001:transport_exhausted"}, f.events.failed)
}

func TestFinalize_EmptyCartIsInvalid(t *testing.T) {
	f := newFixture(t, Config{})
	f.submitter.err = &submission.Error{Kind: submission.ErrInvalidOrder}

	_, err := f.session.Finalize(context.Background(), "Ana")
	assert.ErrorIs(t, err, submission.ErrInvalidOrder)
	assert.Empty(t, f.events.failed)
	assert.Equal(t, "TG-0000001", f.session.CurrentToken())
}

func TestFinalize_SingleInFlight(t *testing.T) {
	f := newFixture(t, Config{})
	s := f.session
	f.submitter.entered = make(chan struct{}, 1)
	f.submitter.release = make(chan struct{})

	require.NoError(t, s.AddLine("R001", 1))

	done := make(chan error, 1)
	go func() {
		_, err := s.Finalize(context.Background(), "Ana")
		done <- err
	}()
	<-f.submitter.entered

	_, err := s.Finalize(context.Background(), "Ana")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	// edits during flight do not reach the payload
	require.NoError(t, s.AddLine("R005", 1))

	close(f.submitter.release)
	require.NoError(t, <-done)

	require.Len(t, f.submitter.lines, 1)
	require.Len(t, f.submitter.lines[0], 1)
	assert.Equal(t, "R001", f.submitter.lines[0][0].ProductID)

	// the unsent line stays for the next order
	lines := s.Cart().Lines
	require.Len(t, lines, 1)
	assert.Equal(t, "R005", lines[0].ProductID)
}

func TestFinalize_KeepsLinesAddedInFlight(t *testing.T) {
	f := newFixture(t, Config{})
	s := f.session
	f.submitter.entered = make(chan struct{}, 1)
	f.submitter.release = make(chan struct{})

	require.NoError(t, s.AddLine("R001", 2))

	done := make(chan error, 1)
	go func() {
		_, err := s.Finalize(context.Background(), "Ana")
		done <- err
	}()
	<-f.submitter.entered

	require.NoError(t, s.AddLine("R001", 1))

	close(f.submitter.release)
	require.NoError(t, <-done)

	view := s.Cart()
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 1, view.Lines[0].Quantity)
	assert.Equal(t, "12.99", view.Total)

	p, _ := s.Snapshot().Find("R001")
	assert.Equal(t, 23, p.CurrentStock)
}

func TestFinalize_CancelledCallerStillPersistsAck(t *testing.T) {
	mr := miniredis.RunT(t)
	tokens := redisclient.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal := &fakeJournal{}
	events := &fakeEvents{}
	cfg := Config{StartToken: "TG-0000001", SubmittedTTL: time.Hour}
	s, err := NewSession(cfg, Deps{
		Catalog:   &fakeCatalog{},
		Submitter: &fakeSubmitter{after: cancel},
		Tokens:    tokens,
		Journal:   journal,
		Events:    events,
	})
	require.NoError(t, err)
	s.Start(context.Background())

	require.NoError(t, s.AddLine("R001", 1))
	ack, err := s.Finalize(ctx, "Ana")
	require.NoError(t, err)
	assert.Equal(t, "TG-0000001", ack.Order.ID)
	require.Error(t, ctx.Err())

	stored, err := tokens.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TG-0000002", stored)

	seen, err := tokens.IsSubmitted(context.Background(), "TG-0000001")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.Contains(t, journal.orders, "TG-0000001")
	assert.Equal(t, []string{"TG-0000001"}, events.submitted)

	restarted, err := NewSession(cfg, Deps{
		Catalog:   &fakeCatalog{},
		Submitter: &fakeSubmitter{},
		Tokens:    tokens,
	})
	require.NoError(t, err)
	restarted.Start(context.Background())
	assert.Equal(t, "TG-0000002", restarted.CurrentToken())
}

func TestFinalize_DuplicateTokenIsSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	s := f.session
	f.tokens.submitted = map[string]bool{"TG-0000001": true}

	require.NoError(t, s.AddLine("R001", 1))

	_, err := s.Finalize(context.Background(), "Ana")
	require.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Empty(t, f.submitter.calls)
	assert.Equal(t, "TG-0000002", s.CurrentToken())
	assert.Len(t, s.Cart().Lines, 1)

	_, err = s.Finalize(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Equal(t, []string{"TG-0000002"}, f.submitter.calls)
}

func TestFinalize_SideEffectFailuresKeepAck(t *testing.T) {
	f := newFixture(t, Config{PushStock: true})
	f.journal.err = errors.New("db down")
	f.catalog.pushErr = errors.New("sheet locked")

	require.NoError(t, f.session.AddLine("R002", 1))
	ack, err := f.session.Finalize(context.Background(), "Ana")
	require.NoError(t, err)
	assert.NotNil(t, ack)
	assert.Equal(t, "TG-0000002", f.session.CurrentToken())
}

func TestCartThroughSession(t *testing.T) {
	f := newFixture(t, Config{StockPolicy: cart.PolicyCartAggregate})
	s := f.session

	require.NoError(t, s.AddLine("R002", 5))
	assert.ErrorIs(t, s.AddLine("R002", 4), cart.ErrInsufficientStock)
	assert.ErrorIs(t, s.AddLine("R004", 1), cart.ErrInsufficientStock)
	assert.ErrorIs(t, s.AddLine("R999", 1), cart.ErrUnknownProduct)

	view := s.Cart()
	assert.Equal(t, "162.50", view.Total)
	assert.Equal(t, "TG-0000001", view.Token)

	s.RemoveLine(7)
	assert.Len(t, s.Cart().Lines, 1)
	s.ClearCart()
	assert.Empty(t, s.Cart().Lines)
}

func TestFinalize_FallbackScenario(t *testing.T) {
	var jsonCalls, formCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "application/json" {
			jsonCalls++
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		formCalls++
		_, _ = io.WriteString(w, `{"success":true,"message":"stored"}`)
	}))
	defer srv.Close()

	s, err := NewSession(Config{StartToken: "TG-0000001"}, Deps{
		Catalog:   &fakeCatalog{},
		Submitter: submission.NewHTTPPipeline(srv.URL, submission.Config{Timeout: time.Second}),
	})
	require.NoError(t, err)
	s.Start(context.Background())

	require.NoError(t, s.AddLine("R001", 2))
	assert.Equal(t, "TG-0000001", s.CurrentToken())

	ack, err := s.Finalize(context.Background(), "Ana")
	require.NoError(t, err)

	assert.Equal(t, "form", ack.Strategy)
	assert.True(t, decimal.RequireFromString("25.98").Equal(ack.Order.Total))
	assert.Equal(t, 1, jsonCalls)
	assert.Equal(t, 1, formCalls)
	assert.Equal(t, "TG-0000002", s.CurrentToken())
}
