package pos

import (
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
)

type printAddon struct {
	Group  string  `json:"group"`
	Option string  `json:"option"`
	Price  float64 `json:"price"`
	Note   string  `json:"note,omitempty"`
}

type printItem struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Quantity int          `json:"quantity"`
	Price    float64      `json:"price"`
	Addons   []printAddon `json:"addons"`
}

type printTotals struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
}

// printRequest is the body of POST /api/print-order.
type printRequest struct {
	OrderID             string      `json:"orderId"`
	OrderNumber         string      `json:"orderNumber"`
	CustomerName        string      `json:"customerName"`
	CustomerPhone       string      `json:"customerPhone"`
	CustomerEmail       string      `json:"customerEmail"`
	CustomerAddress     string      `json:"customerAddress"`
	OrderType           string      `json:"orderType"`
	IsAdvanceOrder      bool        `json:"isAdvanceOrder"`
	ScheduledTime       *string     `json:"scheduledTime"`
	Items               []printItem `json:"items"`
	Totals              printTotals `json:"totals"`
	VoucherCode         string      `json:"voucherCode,omitempty"`
	SpecialInstructions string      `json:"specialInstructions,omitempty"`
	Timestamp           string      `json:"timestamp"`
}

func newPrintRequest(o domain.Order, now time.Time) printRequest {
	req := printRequest{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerEmail:   o.CustomerEmail,
		CustomerAddress: o.CustomerAddress,
		OrderType:       string(o.OrderType),
		IsAdvanceOrder:  o.IsAdvanceOrder,
		Items:           make([]printItem, 0, len(o.Items)),
		Totals: printTotals{
			Subtotal:    o.Subtotal,
			DeliveryFee: o.DeliveryFee,
			Discount:    o.Discount,
			Total:       o.Total,
		},
		VoucherCode:         o.VoucherCode,
		SpecialInstructions: o.SpecialInstructions,
		Timestamp:           now.UTC().Format(time.RFC3339),
	}
	if o.ScheduledTime != nil {
		s := o.ScheduledTime.UTC().Format(time.RFC3339)
		req.ScheduledTime = &s
	}

	for _, it := range o.Items {
		item := printItem{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Addons:   make([]printAddon, 0, len(it.Addons)),
		}
		for _, a := range it.Addons {
			item.Addons = append(item.Addons, printAddon{Group: a.Group, Option: a.Option, Price: a.Price, Note: a.Note})
		}
		req.Items = append(req.Items, item)
	}
	return req
}

// printResponse accepts the job id under any of the names POS vendors use.
type printResponse struct {
	PrintJobID string `json:"printJobId"`
	JobID      string `json:"jobId"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (r printResponse) jobID() string {
	switch {
	case r.PrintJobID != "":
		return r.PrintJobID
	case r.JobID != "":
		return r.JobID
	default:
		return r.ID
	}
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
