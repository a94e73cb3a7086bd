package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/models"
	"pos-service/internal/reconcile"
	"pos-service/internal/sequence"
	"pos-service/internal/submission"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrDuplicateOrder     = errors.New("order id was already submitted")
	ErrJournalDisabled    = errors.New("order journal is not configured")
)

const (
	submissionLock  = "submission"
	afterAckTimeout = 15 * time.Second
)

// CatalogSource loads the catalog and order history
type CatalogSource interface {
	LoadOrFallback(ctx context.Context) *catalog.Snapshot
	HistoryOrFallback(ctx context.Context) ([]models.OrderHistoryRow, string)
	PushStock(ctx context.Context, products []models.Product) error
}

// Submitter delivers an order to the ledger
type Submitter interface {
	Submit(ctx context.Context, orderID, seller string, lines []models.CartLine) (*submission.Ack, error)
}

// TokenStore persists the sequence token and the ids already submitted
type TokenStore interface {
	InitToken(ctx context.Context, start string) (string, error)
	AdvanceToken(ctx context.Context, expected, next string) (bool, error)
	MarkSubmitted(ctx context.Context, orderID string, ttl time.Duration) error
	IsSubmitted(ctx context.Context, orderID string) (bool, error)
}

// Locker serializes submissions across service instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, owner string) error
}

// Journal keeps acknowledged orders
type Journal interface {
	SaveOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// Publisher emits order events
type Publisher interface {
	PublishOrderSubmitted(ctx context.Context, order models.Order, strategy, message string) error
	PublishSubmissionFailed(ctx context.Context, orderID, seller, kind, reason string) error
}

// Config holds the session settings read at start
type Config struct {
	StartToken   string
	StockPolicy  cart.StockPolicy
	PushStock    bool
	SubmittedTTL time.Duration
	LockTTL      time.Duration
}

// Deps are the session collaborators. Tokens, Locker, Journal and Events
// are optional.
type Deps struct {
	Catalog   CatalogSource
	Submitter Submitter
	Tokens    TokenStore
	Locker    Locker
	Journal   Journal
	Events    Publisher
}

// CartView is a read-only copy of the cart
type CartView struct {
	Lines []models.CartLine `json:"lines"`
	Total string            `json:"total"`
	Token string            `json:"next_order_id"`
}

// Session owns the cart, the catalog snapshot and the current sequence
// token of a point of sale
type Session struct {
	mu       sync.Mutex
	cart     *cart.Cart
	snapshot *catalog.Snapshot
	token    string
	inFlight atomic.Bool

	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewSession creates a session starting at cfg.StartToken
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if err := sequence.Validate(cfg.StartToken); err != nil {
		return nil, fmt.Errorf("invalid start token %q: %w", cfg.StartToken, err)
	}
	if deps.Catalog == nil || deps.Submitter == nil {
		return nil, errors.New("session requires a catalog source and a submitter")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}

	return &Session{
		cart:     cart.New(cfg.StockPolicy),
		snapshot: catalog.NewSnapshot(nil, models.SourceFallback),
		token:    cfg.StartToken,
		cfg:      cfg,
		deps:     deps,
		logger:   util.GetLogger(),
	}, nil
}

// Start restores the persisted token and loads the catalog
func (s *Session) Start(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "Session.Start")
	defer span.End()

	if s.deps.Tokens != nil {
		token, err := s.deps.Tokens.InitToken(ctx, s.cfg.StartToken)
		switch {
		case err != nil:
			s.logger.Warn("Token store unavailable, using configured start token",
				zap.String("token", s.cfg.StartToken), zap.Error(err))
		case sequence.Validate(token) != nil:
			s.logger.Warn("Stored token is malformed, using configured start token",
				zap.String("stored", token))
		default:
			s.mu.Lock()
			s.token = token
			s.mu.Unlock()
		}
	}

	s.Reload(ctx)
}

// Reload replaces the catalog snapshot. The cart keeps its frozen lines.
func (s *Session) Reload(ctx context.Context) *catalog.Snapshot {
	ctx, span := util.StartSpan(ctx, "Session.Reload")
	defer span.End()

	snap := s.deps.Catalog.LoadOrFallback(ctx)

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return snap
}

// Snapshot returns the current catalog snapshot
func (s *Session) Snapshot() *catalog.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// History returns the remote order history and its source
func (s *Session) History(ctx context.Context) ([]models.OrderHistoryRow, string) {
	return s.deps.Catalog.HistoryOrFallback(ctx)
}

// CurrentToken returns the id the next order will be submitted with
func (s *Session) CurrentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// AddLine adds quantity of productID to the cart
func (s *Session) AddLine(productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cart.AddLine(productID, quantity, s.snapshot)
	util.CartOperationsTotal.WithLabelValues("add", result(err)).Inc()
	return err
}

// RemoveLine removes the cart line at index
func (s *Session) RemoveLine(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.RemoveLine(index)
	util.CartOperationsTotal.WithLabelValues("remove", "ok").Inc()
}

// ClearCart discards the cart
func (s *Session) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Clear()
	util.CartOperationsTotal.WithLabelValues("clear", "ok").Inc()
}

// Cart returns a copy of the cart
func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CartView{
		Lines: s.cart.Lines(),
		Total: s.cart.Total().StringFixed(2),
		Token: s.token,
	}
}

// Finalize submits the cart as an order by seller. Only one submission runs
// at a time. On Ack the submitted lines leave the cart, the snapshot is
// reconciled and the token advanced; on any error none of them change.
func (s *Session) Finalize(ctx context.Context, seller string) (*submission.Ack, error) {
	ctx, span := util.StartSpan(ctx, "Session.Finalize")
	defer span.End()

	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer s.inFlight.Store(false)

	if s.deps.Locker != nil {
		owner, ok, err := s.deps.Locker.AcquireLock(ctx, submissionLock, s.cfg.LockTTL)
		if err != nil {
			s.logger.Warn("Submission lock unavailable, continuing without it", zap.Error(err))
		} else if !ok {
			return nil, ErrSubmissionInFlight
		} else {
			defer func() {
				if err := s.deps.Locker.ReleaseLock(context.Background(), submissionLock, owner); err != nil {
					s.logger.Warn("Failed to release submission lock", zap.Error(err))
				}
			}()
		}
	}

	s.mu.Lock()
	lines := s.cart.Lines()
	token := s.token
	s.mu.Unlock()

	if s.alreadySubmitted(ctx, token) {
		s.skipToken(ctx, token)
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, token)
	}

	ack, err := s.deps.Submitter.Submit(ctx, token, seller, lines)
	if err != nil {
		util.FailSpan(span, err)
		s.publishFailure(ctx, token, seller, err)
		return nil, err
	}

	next, reconciled := s.commit(token, lines)

	// the ledger already holds the order; the caller going away must not
	// stop the token from being persisted
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterAckTimeout)
	defer cancel()
	s.afterAck(ackCtx, ack, token, next, reconciled)
	return ack, nil
}

// commit applies an Ack to the session state
func (s *Session) commit(token string, sold []models.CartLine) (string, []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.RemoveSold(sold)
	reconciled := reconcile.Reconcile(s.snapshot.Products, sold)
	s.snapshot = s.snapshot.WithProducts(reconciled)

	next, err := sequence.Next(token)
	if err != nil {
		s.logger.Error("Cannot advance order sequence", zap.String("token", token), zap.Error(err))
		return "", reconciled
	}
	s.token = next
	util.SequenceAdvancesTotal.Inc()
	return next, reconciled
}

// afterAck runs the side effects of an acknowledged order. Their failures
// are logged and never undo the Ack.
func (s *Session) afterAck(ctx context.Context, ack *submission.Ack, token, next string, reconciled []models.Product) {
	if s.deps.Tokens != nil {
		if err := s.deps.Tokens.MarkSubmitted(ctx, token, s.cfg.SubmittedTTL); err != nil {
			s.logger.Warn("Failed to mark order submitted", zap.String("order_id", token), zap.Error(err))
		}
		if next != "" {
			ok, err := s.deps.Tokens.AdvanceToken(ctx, token, next)
			if err != nil || !ok {
				s.logger.Warn("Persisted token not advanced",
					zap.String("expected", token),
					zap.String("next", next),
					zap.Bool("swapped", ok),
					zap.Error(err))
			}
		}
	}

	if s.deps.Journal != nil {
		if err := s.deps.Journal.SaveOrder(ctx, ack.Order); err != nil {
			s.logger.Error("Failed to journal order", zap.String("order_id", token), zap.Error(err))
		}
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishOrderSubmitted(ctx, ack.Order, ack.Strategy, ack.Message); err != nil {
			s.logger.Error("Failed to publish order event", zap.String("order_id", token), zap.Error(err))
		}
	}

	if s.cfg.PushStock {
		if err := s.deps.Catalog.PushStock(ctx, reconciled); err != nil {
			util.StockPushFailuresTotal.Inc()
			s.logger.Warn("Failed to push stock to ledger", zap.Error(err))
		}
	}
}

func (s *Session) alreadySubmitted(ctx context.Context, token string) bool {
	if s.deps.Tokens == nil {
		return false
	}
	seen, err := s.deps.Tokens.IsSubmitted(ctx, token)
	if err != nil {
		s.logger.Warn("Cannot check submitted ids", zap.String("order_id", token), zap.Error(err))
		return false
	}
	return seen
}

// skipToken moves past a token that an earlier Ack already consumed
func (s *Session) skipToken(ctx context.Context, token string) {
	next, err := sequence.Next(token)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.token == token {
		s.token = next
	}
	s.mu.Unlock()

	if _, err := s.deps.Tokens.AdvanceToken(ctx, token, next); err != nil {
		s.logger.Warn("Failed to skip consumed token", zap.String("token", token), zap.Error(err))
	}
	s.logger.Warn("Skipped already submitted order id",
		zap.String("token", token), zap.String("next", next))
}

func (s *Session) publishFailure(ctx context.Context, token, seller string, err error) {
	if s.deps.Events == nil || errors.Is(err, submission.ErrInvalidOrder) {
		return
	}
	if perr := s.deps.Events.PublishSubmissionFailed(ctx, token, seller,
		submission.KindOf(err), submission.ReasonOf(err)); perr != nil {
		s.logger.Warn("Failed to publish failure event", zap.String("order_id", token), zap.Error(perr))
	}
}

// GetOrder returns a journaled order
func (s *Session) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.deps.Journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.deps.Journal.GetOrder(ctx, id)
}

// RecentOrders lists journaled orders
func (s *Session) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if s.deps.Journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.deps.Journal.ListOrders(ctx, limit)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
