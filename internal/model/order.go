package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the local record of a platform order, keyed by SourceID.
type Order struct {
	ID                int64           `json:"id"`
	SourceID          int64           `json:"source_id"`
	OrderNumber       string          `json:"order_number"`
	FinancialStatus   string          `json:"financial_status"`
	FulfillmentStatus string          `json:"fulfillment_status,omitempty"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Currency          string          `json:"currency,omitempty"`
	CustomerSourceID  *int64          `json:"customer_source_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Items             []OrderItem     `json:"items"`

	// Version is the platform updated_at (unix micros) of the payload that
	// last set the scalar fields; ItemsVersion the one that last set Items.
	// Zero means unversioned.
	Version      int64 `json:"-"`
	ItemsVersion int64 `json:"-"`
}

// OrderItem is a line of an Order. It has no identity outside its order.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductSourceID *int64          `json:"product_source_id,omitempty"`
	VariantSourceID *int64          `json:"variant_source_id,omitempty"`
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

// OrderChange is one decoded order payload. Nil fields were absent from the
// payload and never clear stored values.
type OrderChange struct {
	SourceID          int64
	OrderNumber       *string
	FinancialStatus   *string
	FulfillmentStatus *string
	TotalPrice        decimal.NullDecimal
	Currency          *string
	Customer          *Customer
	CreatedAt         *time.Time
	UpdatedAt         *time.Time

	// HasItems distinguishes "line_items": [] from a payload without the key.
	HasItems bool
	Items    []OrderItem
}

// Version returns the change's ordering version, 0 when unversioned.
func (c *OrderChange) Version() int64 {
	return versionOf(c.UpdatedAt)
}

// NewOrder builds the initial Order for a change whose source id is unseen.
func (c *OrderChange) NewOrder(now time.Time) Order {
	o := Order{
		SourceID:  c.SourceID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   c.Version(),
	}
	if c.CreatedAt != nil {
		o.CreatedAt = c.CreatedAt.UTC()
	}
	if c.OrderNumber != nil {
		o.OrderNumber = *c.OrderNumber
	}
	if c.FinancialStatus != nil {
		o.FinancialStatus = *c.FinancialStatus
	}
	if c.FulfillmentStatus != nil {
		o.FulfillmentStatus = *c.FulfillmentStatus
	}
	if c.TotalPrice.Valid {
		o.TotalPrice = c.TotalPrice.Decimal
	}
	if c.Currency != nil {
		o.Currency = *c.Currency
	}
	if c.Customer != nil {
		id := c.Customer.SourceID
		o.CustomerSourceID = &id
	}
	if c.HasItems {
		o.Items = append([]OrderItem(nil), c.Items...)
		o.ItemsVersion = o.Version
	}
	return o
}

func versionOf(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
