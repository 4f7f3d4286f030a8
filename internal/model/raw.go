package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawOrder is an order record as it arrives on the wire. Two historical
// naming conventions are in circulation, so most fields have a camelCase and
// a snake_case twin. Normalize resolves them.
type RawOrder struct {
	OrderID FlexInt `json:"orderId"`
	ID      FlexInt `json:"id"`

	Status FlexString `json:"status"`

	PhoneNumber      FlexString `json:"phoneNumber"`
	PhoneNumberSnake FlexString `json:"phone_number"`

	IDStore      FlexInt `json:"idStore"`
	IDStoreSnake FlexInt `json:"id_store"`

	CreatedAt         RawTime `json:"created_at"`
	CreatedAtCamel    RawTime `json:"createdAt"`
	CompletedAt       RawTime `json:"completed_at"`
	CompletedAtCamel  RawTime `json:"completedAt"`
	HandedOverAt      RawTime `json:"handed_over_at"`
	HandedOverAtCamel RawTime `json:"handedOverAt"`
}

// StatusUpdate is the payload of an order_status_updated event.
type StatusUpdate struct {
	OrderID   FlexInt    `json:"orderId"`
	Status    FlexString `json:"status"`
	UpdatedBy FlexString `json:"updatedBy"`
	Timestamp RawTime    `json:"timestamp"`
}

// ConnectionConfirmed is the payload of the server's connect acknowledgement.
type ConnectionConfirmed struct {
	Message   string  `json:"message"`
	ClientID  string  `json:"clientId"`
	Timestamp RawTime `json:"timestamp"`
}

// Normalize converts a raw record into an Order. Missing or unparseable
// fields are defaulted: id 0, status new, creation time now.
func Normalize(r RawOrder, now time.Time) Order {
	status, _ := ParseStatus(string(r.Status))

	o := Order{
		ID:          int64(firstInt(r.OrderID, r.ID)),
		Status:      status,
		PhoneNumber: firstString(r.PhoneNumber, r.PhoneNumberSnake),
		StoreID:     int64(firstInt(r.IDStore, r.IDStoreSnake)),
		CreatedAt:   now,
	}

	if t, ok := firstTime(now.Location(), r.CreatedAt, r.CreatedAtCamel); ok {
		o.CreatedAt = t
	}
	if t, ok := firstTime(now.Location(), r.CompletedAt, r.CompletedAtCamel); ok {
		o.CompletedAt = &t
	}
	if t, ok := firstTime(now.Location(), r.HandedOverAt, r.HandedOverAtCamel); ok {
		o.HandedOverAt = &t
	}

	return o
}

func firstInt(vals ...FlexInt) FlexInt {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...FlexString) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func firstTime(loc *time.Location, vals ...RawTime) (time.Time, bool) {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if t, ok := v.Parse(loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// FlexInt decodes a JSON number or a numeric string. null, "" and anything
// unparseable decode to 0 rather than failing the whole record.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = FlexInt(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = FlexInt(int64(f))
		return nil
	}
	*n = 0
	return nil
}

// FlexString decodes a JSON string or the literal text of a number or
// boolean. null, objects and arrays decode to "" rather than failing the
// whole record.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = []byte(strings.TrimSpace(string(b)))
	*s = ""
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err == nil {
			*s = FlexString(v)
		}
	case '{', '[', 'n':
	default:
		*s = FlexString(b)
	}
	return nil
}

// RawTime holds a timestamp exactly as received: an ISO-8601 string or a
// Unix epoch in milliseconds.
type RawTime string

// UnmarshalJSON implements json.Unmarshaler.
func (t *RawTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*t = RawTime(s)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse interprets the raw value. Zone-less layouts are read in loc.
func (t RawTime) Parse(loc *time.Location) (time.Time, bool) {
	s := string(t)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), true
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
