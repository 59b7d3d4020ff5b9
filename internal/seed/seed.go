// Package seed loads YAML order fixtures for development environments.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

type File struct {
	Orders []Order `yaml:"orders"`
}

type Order struct {
	CustomerName    string `yaml:"customerName"`
	CustomerEmail   string `yaml:"customerEmail"`
	Channel         string `yaml:"channel"`
	OrderStatus     string `yaml:"orderStatus"`
	PaymentStatus   string `yaml:"paymentStatus"`
	Currency        string `yaml:"currency"`
	TotalAmount     int64  `yaml:"totalAmount"`
	PaymentIntentID string `yaml:"paymentIntentId"`
	Items           []Item `yaml:"items"`
}

type Item struct {
	Name      string `yaml:"name"`
	Quantity  int    `yaml:"quantity"`
	UnitPrice int64  `yaml:"unitPrice"`
}

type creator interface {
	Create(ctx context.Context, order *models.Order) error
}

// Load parses a fixture file and validates every order against the
// status taxonomy before anything is written.
func Load(path string) ([]models.Order, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	orders := make([]models.Order, 0, len(file.Orders))
	for i, entry := range file.Orders {
		order, err := toOrder(entry)
		if err != nil {
			return nil, fmt.Errorf("seed order %d: %w", i, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Apply writes the fixture orders through the given store.
func Apply(ctx context.Context, store creator, orders []models.Order, logger *slog.Logger) error {
	for i := range orders {
		if err := store.Create(ctx, &orders[i]); err != nil {
			return fmt.Errorf("failed to seed order %d: %w", i, err)
		}
	}
	if logger != nil {
		logger.Info("seed data applied", "orders", len(orders))
	}
	return nil
}

func toOrder(entry Order) (models.Order, error) {
	var order models.Order

	channel := models.Channel(entry.Channel)
	if !channel.Valid() {
		return order, lifecycle.NewInvalidStateError(entry.Channel)
	}

	status := models.StatusNew
	if entry.OrderStatus != "" {
		parsed, err := lifecycle.ParseOrderStatus(entry.OrderStatus)
		if err != nil {
			return order, err
		}
		status = parsed
	}

	payment := models.PaymentUnpaid
	if entry.PaymentStatus != "" {
		parsed, err := lifecycle.ParsePaymentStatus(entry.PaymentStatus)
		if err != nil {
			return order, err
		}
		payment = parsed
	}

	if entry.CustomerName == "" {
		return order, fmt.Errorf("customerName is required")
	}
	if entry.Currency == "" {
		return order, fmt.Errorf("currency is required")
	}

	items := make([]models.LineItem, 0, len(entry.Items))
	var total int64
	for _, item := range entry.Items {
		if item.Quantity < 1 {
			return order, fmt.Errorf("item %q: quantity must be positive", item.Name)
		}
		lineTotal := item.UnitPrice * int64(item.Quantity)
		total += lineTotal
		items = append(items, models.LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
	}

	totalAmount := entry.TotalAmount
	if totalAmount == 0 {
		totalAmount = total
	}

	return models.Order{
		CustomerID:      uuid.New(),
		CustomerName:    entry.CustomerName,
		CustomerEmail:   entry.CustomerEmail,
		Channel:         channel,
		OrderStatus:     status,
		PaymentStatus:   payment,
		Currency:        entry.Currency,
		TotalAmount:     totalAmount,
		PaymentIntentID: entry.PaymentIntentID,
		Items:           items,
	}, nil
}
