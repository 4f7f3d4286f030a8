package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an order as reported by the server.
type Status string

const (
	StatusNew       Status = "new"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDelivered Status = "delivered"
)

// ParseStatus maps a wire status to a Status. An empty string maps to
// StatusNew; an unrecognised value is returned as-is with ok=false.
func ParseStatus(s string) (st Status, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Status(s) {
	case "":
		return StatusNew, true
	case StatusNew, StatusCompleted, StatusCancelled, StatusDelivered:
		return Status(s), true
	}
	return Status(s), false
}

// Terminal reports whether the order has left the board for good.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// Visible reports whether an order with this status belongs on one of the
// two display lists.
func (s Status) Visible() bool {
	return s == StatusNew || s == StatusCompleted
}

// Order is one customer order as shown on the board.
type Order struct {
	ID           int64      `json:"id"`
	Status       Status     `json:"status"`
	PhoneNumber  string     `json:"phone_number"`
	StoreID      int64      `json:"id_store"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	HandedOverAt *time.Time `json:"handed_over_at"`
}

// Placeholder synthesizes an order for an id that was only seen through a
// status update. Phone and store are unknown and left empty.
func Placeholder(id int64, status Status, createdAt time.Time) Order {
	return Order{
		ID:        id,
		Status:    status,
		CreatedAt: createdAt,
	}
}

// IsToday reports whether t falls on the same calendar day as now, evaluated
// in now's location.
func IsToday(t, now time.Time) bool {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	return ty == ny && tm == nm && td == nd
}
