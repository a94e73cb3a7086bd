package catalog

import (
	"github.com/shopspring/decimal"

	"pos-service/internal/models"
)

// ExampleProducts is served when the ledger cannot be read
func ExampleProducts() []models.Product {
	return []models.Product{
		exampleProduct("R001", "Filtro de Aceite", 50, 25, "5.50", "12.99"),
		exampleProduct("R002", "Pastillas de Freno", 30, 8, "15.75", "32.50"),
		exampleProduct("R003", "Bujías", 100, 45, "3.25", "8.99"),
		exampleProduct("R004", "Aceite Motor 5W-30", 80, 0, "18.00", "35.99"),
		exampleProduct("R005", "Filtro de Aire", 40, 15, "7.80", "18.50"),
	}
}

// ExampleHistory is served when the orders sheet cannot be read
func ExampleHistory() []models.OrderHistoryRow {
	return []models.OrderHistoryRow{
		exampleHistory("TG-0000001", "2023-10-15", "Filtro de Aceite", 2, "12.99", "25.98", "Juan Pérez"),
		exampleHistory("TG-0000002", "2023-10-16", "Pastillas de Freno", 1, "32.50", "32.50", "María García"),
		exampleHistory("TG-0000003", "2023-10-17", "Bujías", 4, "8.99", "35.96", "Carlos López"),
	}
}

func exampleProduct(id, desc string, initial, current int, cost, price string) models.Product {
	return models.Product{
		ID:           id,
		Description:  desc,
		InitialStock: initial,
		CurrentStock: current,
		EndingStock:  current,
		Cost:         decimal.RequireFromString(cost),
		Price:        decimal.RequireFromString(price),
	}
}

func exampleHistory(id, date, desc string, qty int, price, total, seller string) models.OrderHistoryRow {
	return models.OrderHistoryRow{
		OrderID:     id,
		Date:        date,
		Description: desc,
		Quantity:    qty,
		Price:       decimal.RequireFromString(price),
		Total:       decimal.RequireFromString(total),
		Seller:      seller,
	}
}
