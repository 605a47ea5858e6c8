package domain

import "time"

// DailyAlertRecord marks that the prep alert for (TenantID, Date) went out.
// Date is a calendar day formatted as 2006-01-02.
type DailyAlertRecord struct {
	TenantID   string
	Date       string
	OrderCount int
	SentAt     time.Time
}

type AlertOrder struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	ScheduledTime time.Time `json:"scheduled_time"`
	ItemCount     int       `json:"item_count"`
	Total         float64   `json:"total"`
}

type AlertGroup struct {
	FireTime time.Time    `json:"fire_time"`
	Orders   []AlertOrder `json:"orders"`
}

// DailyAlert is the payload handed to the notification sink.
type DailyAlert struct {
	TenantID   string       `json:"tenant_id"`
	TenantName string       `json:"tenant_name"`
	Recipient  string       `json:"recipient"`
	Date       string       `json:"date"`
	OrderCount int          `json:"order_count"`
	Groups     []AlertGroup `json:"groups"`
	Summary    string       `json:"summary"`
}
