package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already journaled")
)

const defaultListLimit = 50

// SaveOrder journals an acknowledged order and its lines in one transaction
func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	ctx, span := util.StartSpan(ctx, "Store.SaveOrder")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, seller, created_at, total, strategy)
		VALUES (:id, :seller, :created_at, :total, :strategy)
		ON CONFLICT (id) DO NOTHING`, order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrOrderExists, order.ID)
	}

	for _, line := range OrderLines(order) {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, description, quantity, unit_price, line_total)
			VALUES (:order_id, :position, :product_id, :description, :quantity, :unit_price, :line_total)`, line)
		if err != nil {
			return fmt.Errorf("failed to insert order line %d: %w", line.Position, err)
		}
	}

	return tx.Commit()
}

// GetOrder retrieves a journaled order with its lines
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Store.GetOrder")
	defer span.End()

	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT id, seller, created_at, total, strategy FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var lines []models.OrderLine
	err = s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}

	order.Lines = CartLines(lines)
	return &order, nil
}

// ListOrders returns the most recent orders without their lines
func (s *Store) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT id, seller, created_at, total, strategy FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	return orders, err
}

// OrderLines converts the lines of order to their journaled form
func OrderLines(order models.Order) []models.OrderLine {
	out := make([]models.OrderLine, len(order.Lines))
	for i, l := range order.Lines {
		out[i] = models.OrderLine{
			OrderID:     order.ID,
			Position:    i,
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		}
	}
	return out
}

// CartLines converts journaled lines back to cart lines
func CartLines(lines []models.OrderLine) []models.CartLine {
	out := make([]models.CartLine, len(lines))
	for i, l := range lines {
		out[i] = models.CartLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal,
		}
	}
	return out
}
