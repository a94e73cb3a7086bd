// Package submission delivers finalized orders to the ledger through an
// ordered chain of strategies, falling back only on transport failures.
package submission

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const DefaultTimeout = 20 * time.Second

// Config tunes a Pipeline
type Config struct {
	// Timeout bounds each strategy attempt
	Timeout time.Duration
	// BreakerFailures is the number of consecutive transport failures that
	// opens a strategy's breaker. Zero disables breakers.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Ack confirms the ledger stored an order
type Ack struct {
	Order    models.Order `json:"order"`
	Strategy string       `json:"strategy"`
	Message  string       `json:"message,omitempty"`
	Attempts []Attempt    `json:"attempts"`
}

type stage struct {
	strategy Strategy
	breaker  *gobreaker.CircuitBreaker[string]
}

// Pipeline submits orders through its strategies in order
type Pipeline struct {
	stages  []stage
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewPipeline creates a pipeline trying strategies in the given order
func NewPipeline(cfg Config, strategies ...Strategy) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	stages := make([]stage, len(strategies))
	for i, s := range strategies {
		stages[i] = stage{strategy: s, breaker: newBreaker(s.Name(), cfg)}
	}

	return &Pipeline{
		stages:  stages,
		timeout: cfg.Timeout,
		now:     time.Now,
		logger:  util.GetLogger(),
	}
}

// NewHTTPPipeline creates the JSON then form pipeline against url
func NewHTTPPipeline(url string, cfg Config) *Pipeline {
	client := &http.Client{}
	return NewPipeline(cfg,
		NewJSONStrategy(url, client),
		NewFormStrategy(url, client),
	)
}

func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[string] {
	if cfg.BreakerFailures == 0 {
		return nil
	}
	threshold := cfg.BreakerFailures
	logger := util.GetLogger()

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a reachable ledger is healthy even when it refuses an order
		IsSuccessful: func(err error) bool {
			_, stop := terminal(err)
			return err == nil || stop
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Submission breaker state changed",
				zap.String("strategy", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Submit builds the order and delivers it. The lines are copied and never
// modified. On failure the returned error is a *Error.
func (p *Pipeline) Submit(ctx context.Context, orderID, seller string, lines []models.CartLine) (*Ack, error) {
	ctx, span := util.StartSpan(ctx, "SubmissionPipeline.Submit")
	defer span.End()

	order, verr := p.buildOrder(orderID, seller, lines)
	if verr != nil {
		util.SubmissionsTotal.WithLabelValues(KindOf(verr)).Inc()
		util.FailSpan(span, verr)
		return nil, verr
	}
	payload := NewPayload(order)

	attempts := make([]Attempt, 0, len(p.stages))
	for _, st := range p.stages {
		name := st.strategy.Name()
		started := time.Now()
		msg, err := p.attempt(ctx, st, payload)
		elapsed := time.Since(started)

		a := Attempt{Strategy: name, Duration: elapsed}
		util.SubmissionLatency.WithLabelValues(name).Observe(elapsed.Seconds())

		if err == nil {
			a.Outcome = OutcomeAcked
			attempts = append(attempts, a)
			util.SubmissionAttemptsTotal.WithLabelValues(name, a.Outcome).Inc()
			util.SubmissionsTotal.WithLabelValues(OutcomeAcked).Inc()

			order.Strategy = name
			p.logger.Info("Order submitted",
				zap.String("order_id", order.ID),
				zap.String("strategy", name),
				zap.Int("attempts", len(attempts)))
			return &Ack{Order: order, Strategy: name, Message: msg, Attempts: attempts}, nil
		}

		a.Error = err.Error()
		if se, stop := terminal(err); stop {
			a.Outcome = OutcomeRejected
			if errors.Is(se, ErrUnconfirmed) {
				a.Outcome = OutcomeUnconfirmed
			}
			attempts = append(attempts, a)
			util.SubmissionAttemptsTotal.WithLabelValues(name, a.Outcome).Inc()
			util.SubmissionsTotal.WithLabelValues(KindOf(se)).Inc()

			p.logger.Warn("Order not accepted by ledger",
				zap.String("order_id", order.ID),
				zap.String("strategy", name),
				zap.String("outcome", a.Outcome),
				zap.String("reason", se.Reason))
			out := &Error{Kind: se.Kind, Reason: se.Reason, Attempts: attempts}
			util.FailSpan(span, out)
			return nil, out
		}

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			a.Outcome = OutcomeBreakerOpen
		case isTimeout(err):
			a.Outcome = OutcomeTimeout
		default:
			a.Outcome = OutcomeTransport
		}
		attempts = append(attempts, a)
		util.SubmissionAttemptsTotal.WithLabelValues(name, a.Outcome).Inc()

		p.logger.Warn("Submission strategy failed, falling back",
			zap.String("order_id", order.ID),
			zap.String("strategy", name),
			zap.String("outcome", a.Outcome),
			zap.Error(err))
	}

	out := exhausted(attempts)
	util.SubmissionsTotal.WithLabelValues(KindOf(out)).Inc()
	util.FailSpan(span, out)
	p.logger.Error("Order submission failed",
		zap.String("order_id", order.ID),
		zap.Error(out))
	return nil, out
}

// attempt runs one strategy under the per-attempt timeout and its breaker
func (p *Pipeline) attempt(ctx context.Context, st stage, payload Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	send := func() (string, error) {
		return st.strategy.Send(ctx, payload)
	}
	if st.breaker == nil {
		return send()
	}
	return st.breaker.Execute(send)
}

func (p *Pipeline) buildOrder(orderID, seller string, lines []models.CartLine) (models.Order, *Error) {
	orderID = strings.TrimSpace(orderID)
	seller = strings.TrimSpace(seller)

	switch {
	case orderID == "":
		return models.Order{}, invalid("order id is empty")
	case seller == "":
		return models.Order{}, invalid("seller is empty")
	case len(lines) == 0:
		return models.Order{}, invalid("order has no lines")
	}

	frozen := make([]models.CartLine, len(lines))
	copy(frozen, lines)
	for i, l := range frozen {
		if l.Quantity <= 0 {
			return models.Order{}, invalid("line %d has quantity %d", i, l.Quantity)
		}
	}

	return models.Order{
		ID:        orderID,
		Seller:    seller,
		Timestamp: p.now().UTC(),
		Lines:     frozen,
		Total:     cart.Sum(frozen),
	}, nil
}

// exhausted builds the error for a chain where every strategy failed to
// reach the ledger
func exhausted(attempts []Attempt) *Error {
	allTimedOut := len(attempts) > 0
	for _, a := range attempts {
		if a.Outcome != OutcomeTimeout {
			allTimedOut = false
			break
		}
	}

	kind := ErrTransportExhausted
	if allTimedOut {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Attempts: attempts}
}
