package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDineIn   OrderType = "dine_in"
)

type ItemAddon struct {
	Group  string  `json:"group"`
	Option string  `json:"option"`
	Price  float64 `json:"price"`
	Note   string  `json:"note,omitempty"`
}

type OrderItem struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price"`
	Addons   []ItemAddon `json:"addons,omitempty"`
}

// Order is the read model of a placed order. It is owned by the order-placement
// flow; this module only flips Printed and cancels.
type Order struct {
	ID                  string
	TenantID            string
	OrderNumber         string
	CustomerName        string
	CustomerPhone       string
	CustomerEmail       string
	CustomerAddress     string
	OrderType           OrderType
	Items               []OrderItem
	Subtotal            float64
	DeliveryFee         float64
	Discount            float64
	Total               float64
	VoucherCode         string
	SpecialInstructions string
	IsAdvanceOrder      bool
	ScheduledTime       *time.Time
	Status              OrderStatus
	Printed             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ItemCount sums quantities across all line items.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
