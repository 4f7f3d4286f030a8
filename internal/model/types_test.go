package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   Status
		wantOK bool
	}{
		{"new", StatusNew, true},
		{"COMPLETED", StatusCompleted, true},
		{" cancelled ", StatusCancelled, true},
		{"delivered", StatusDelivered, true},
		{"", StatusNew, true},
		{"cooking", Status("cooking"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsToday(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, loc)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"yesterday last second", time.Date(2024, 3, 9, 23, 59, 59, 0, loc), false},
		{"today first second", time.Date(2024, 3, 10, 0, 0, 1, 0, loc), true},
		{"today last second", time.Date(2024, 3, 10, 23, 59, 59, 0, loc), true},
		{"tomorrow", time.Date(2024, 3, 11, 0, 0, 0, 0, loc), false},
		// 22:30 UTC on the 9th is 01:30 on the 10th in UTC+3.
		{"other zone same local day", time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsToday(tt.at, now); got != tt.want {
				t.Errorf("IsToday(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestNormalize_CamelCase(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	data := `{"orderId": 12, "status": "completed", "phoneNumber": "+7000", "idStore": 4,
		"created_at": "2024-03-10T09:15:00Z", "completed_at": "2024-03-10T09:30:00Z"}`

	var raw RawOrder
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	o := Normalize(raw, now)

	if o.ID != 12 {
		t.Errorf("ID = %d, want 12", o.ID)
	}
	if o.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", o.Status)
	}
	if o.PhoneNumber != "+7000" {
		t.Errorf("PhoneNumber = %q, want +7000", o.PhoneNumber)
	}
	if o.StoreID != 4 {
		t.Errorf("StoreID = %d, want 4", o.StoreID)
	}
	if !o.CreatedAt.Equal(time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", o.CreatedAt)
	}
	if o.CompletedAt == nil || !o.CompletedAt.Equal(time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("CompletedAt = %v", o.CompletedAt)
	}
	if o.HandedOverAt != nil {
		t.Errorf("HandedOverAt = %v, want nil", o.HandedOverAt)
	}
}

func TestNormalize_SnakeCase(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	data := `{"id": "31", "phone_number": "555", "id_store": "2", "created_at": "2024-03-10 08:00:00"}`

	var raw RawOrder
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	o := Normalize(raw, now)

	if o.ID != 31 {
		t.Errorf("ID = %d, want 31", o.ID)
	}
	if o.PhoneNumber != "555" {
		t.Errorf("PhoneNumber = %q, want 555", o.PhoneNumber)
	}
	if o.StoreID != 2 {
		t.Errorf("StoreID = %d, want 2", o.StoreID)
	}
	if o.Status != StatusNew {
		t.Errorf("Status = %q, want new (default)", o.Status)
	}
	if !o.CreatedAt.Equal(time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v, want 08:00 in now's location", o.CreatedAt)
	}
}

func TestNormalize_FirstNonAbsentWins(t *testing.T) {
	now := time.Now()
	raw := RawOrder{
		OrderID:          0,
		ID:               9,
		PhoneNumber:      "",
		PhoneNumberSnake: "123",
		IDStore:          7,
		IDStoreSnake:     8,
	}

	o := Normalize(raw, now)
	if o.ID != 9 {
		t.Errorf("ID = %d, want 9", o.ID)
	}
	if o.PhoneNumber != "123" {
		t.Errorf("PhoneNumber = %q, want 123", o.PhoneNumber)
	}
	if o.StoreID != 7 {
		t.Errorf("StoreID = %d, want 7 (camelCase first)", o.StoreID)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	var raw RawOrder
	if err := json.Unmarshal([]byte(`{"id": "not-a-number", "created_at": "garbage"}`), &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	o := Normalize(raw, now)

	if o.ID != 0 {
		t.Errorf("ID = %d, want 0", o.ID)
	}
	if o.Status != StatusNew {
		t.Errorf("Status = %q, want new", o.Status)
	}
	if !o.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want now", o.CreatedAt)
	}
}

func TestNormalize_WrongTypedFields(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	data := `{"id": 7, "status": 5, "phoneNumber": 79991234567, "idStore": {"x": 1},
		"created_at": "2024-03-10T09:00:00Z"}`

	var raw RawOrder
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	o := Normalize(raw, now)

	if o.ID != 7 {
		t.Errorf("ID = %d, want 7", o.ID)
	}
	if o.PhoneNumber != "79991234567" {
		t.Errorf("PhoneNumber = %q, want 79991234567", o.PhoneNumber)
	}
	if o.Status != Status("5") {
		t.Errorf("Status = %q, want raw 5", o.Status)
	}
	if o.StoreID != 0 {
		t.Errorf("StoreID = %d, want 0", o.StoreID)
	}
	if !o.CreatedAt.Equal(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", o.CreatedAt)
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want FlexString
	}{
		{`"abc"`, "abc"},
		{`"a\"b"`, `a"b`},
		{`12345`, "12345"},
		{`1.5`, "1.5"},
		{`true`, "true"},
		{`null`, ""},
		{`{"a": 1}`, ""},
		{`[1, 2]`, ""},
	}
	for _, tt := range tests {
		var got struct {
			V FlexString `json:"v"`
		}
		if err := json.Unmarshal([]byte(`{"v": `+tt.in+`}`), &got); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if got.V != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, got.V, tt.want)
		}
	}
}

func TestRawTime_EpochMillis(t *testing.T) {
	var upd StatusUpdate
	if err := json.Unmarshal([]byte(`{"orderId": 3, "status": "completed", "timestamp": 1710072000000}`), &upd); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	got, ok := upd.Timestamp.Parse(time.UTC)
	if !ok {
		t.Fatal("expected timestamp to parse")
	}
	if want := time.UnixMilli(1710072000000).UTC(); !got.Equal(want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
	if upd.OrderID != 3 {
		t.Errorf("OrderID = %d, want 3", upd.OrderID)
	}
}

func TestStatusFlags(t *testing.T) {
	if !StatusCancelled.Terminal() || !StatusDelivered.Terminal() {
		t.Error("cancelled and delivered should be terminal")
	}
	if StatusNew.Terminal() || StatusCompleted.Terminal() {
		t.Error("new and completed should not be terminal")
	}
	if !StatusNew.Visible() || !StatusCompleted.Visible() || StatusDelivered.Visible() {
		t.Error("only new and completed should be visible")
	}
}
