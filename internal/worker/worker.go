package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/receipt"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// ReceiptWorker renders a receipt file for every submitted order event
type ReceiptWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	renderer     *receipt.TextRenderer
	dir          string
	logger       *zap.Logger
}

// NewReceiptWorker creates a worker writing receipts into dir
func NewReceiptWorker(consumer *broker.Consumer, renderer *receipt.TextRenderer, dir string) *ReceiptWorker {
	w := &ReceiptWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		renderer:     renderer,
		dir:          dir,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderSubmitted(w.HandleOrderSubmitted)
	w.eventHandler.OnSubmissionFailed(w.HandleSubmissionFailed)
	return w
}

// Start consumes order events until ctx is cancelled
func (w *ReceiptWorker) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create receipt dir: %w", err)
	}
	w.logger.Info("Starting receipt worker", zap.String("dir", w.dir))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.consumer.Close()
}

// HandleOrderSubmitted writes the receipt for the event's order
func (w *ReceiptWorker) HandleOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error {
	_, span := util.StartSpan(ctx, "ReceiptWorker.HandleOrderSubmitted")
	defer span.End()

	path, err := w.writeReceipt(event.Order)
	if err != nil {
		util.ReceiptFailuresTotal.WithLabelValues("write").Inc()
		util.FailSpan(span, err)
		return err
	}

	util.ReceiptsRenderedTotal.Inc()
	w.logger.Info("Receipt written",
		zap.String("order_id", event.Order.ID),
		zap.String("path", path))
	return nil
}

// HandleSubmissionFailed records failed submissions
func (w *ReceiptWorker) HandleSubmissionFailed(ctx context.Context, event *models.OrderSubmissionFailedEvent) error {
	w.logger.Warn("Order submission failed, no receipt issued",
		zap.String("order_id", event.OrderID),
		zap.String("seller", event.Seller),
		zap.String("kind", event.Kind),
		zap.String("reason", event.Reason))
	return nil
}

// writeReceipt renders into a temp file and renames it so readers never see
// a partial receipt
func (w *ReceiptWorker) writeReceipt(order models.Order) (string, error) {
	tmp, err := os.CreateTemp(w.dir, ".receipt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create receipt file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := w.renderer.Render(tmp, order); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close receipt file: %w", err)
	}

	path := filepath.Join(w.dir, receipt.FileName(order.ID))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move receipt into place: %w", err)
	}
	return path, nil
}
