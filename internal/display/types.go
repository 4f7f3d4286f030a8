package display

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

// Errors
var (
	ErrNoReconnector = errors.New("no reconnector configured")
)

// Board is the presentation state. Field names follow the web client.
type Board struct {
	NewOrders       []model.Order `json:"newOrders"`
	CompletedOrders []model.Order `json:"completedOrders"`
	IsLoading       bool          `json:"isLoading"`
	Error           string        `json:"error,omitempty"`
	Connected       bool          `json:"connected"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Reconnector performs a manual reconnect. connection.Manager satisfies it.
type Reconnector interface {
	ForceReconnect(ctx context.Context) error
}

// HealthCheck reports an optional dependency's health.
type HealthCheck func(ctx context.Context) error
