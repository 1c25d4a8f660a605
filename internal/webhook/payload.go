package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shopsync-api/internal/model"

	"github.com/shopspring/decimal"
)

// ValidationError reports a payload that cannot be reconciled.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// flexID accepts a JSON number or a numeric string.
type flexID int64

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = flexID(n)
	return nil
}

// flexString accepts a JSON string or number (order_number is numeric on
// some API versions).
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

type customerPayload struct {
	ID        flexID  `json:"id"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type lineItemPayload struct {
	ProductID *flexID         `json:"product_id"`
	VariantID *flexID         `json:"variant_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderPayload struct {
	ID                flexID              `json:"id"`
	OrderNumber       *flexString         `json:"order_number"`
	FinancialStatus   *string             `json:"financial_status"`
	FulfillmentStatus *string             `json:"fulfillment_status"`
	TotalPrice        decimal.NullDecimal `json:"total_price"`
	Currency          *string             `json:"currency"`
	Email             *string             `json:"email"`
	Customer          *customerPayload    `json:"customer"`
	LineItems         *[]lineItemPayload  `json:"line_items"`
	CreatedAt         *time.Time          `json:"created_at"`
	UpdatedAt         *time.Time          `json:"updated_at"`
}

type productPayload struct {
	ID          flexID     `json:"id"`
	Title       *string    `json:"title"`
	BodyHTML    *string    `json:"body_html"`
	Vendor      *string    `json:"vendor"`
	ProductType *string    `json:"product_type"`
	Status      *string    `json:"status"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	Image       *struct {
		Src *string `json:"src"`
	} `json:"image"`
	Variants []struct {
		Price decimal.NullDecimal `json:"price"`
	} `json:"variants"`
}

func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return invalid("body", "empty payload")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return invalid("body", "malformed JSON: %v", err)
	}
	return nil
}

// DecodeOrder decodes an orders/create or orders/update payload.
func DecodeOrder(body []byte) (*model.OrderChange, error) {
	var p orderPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, invalid("id", "order id is required")
	}
	if p.TotalPrice.Valid && p.TotalPrice.Decimal.IsNegative() {
		return nil, invalid("total_price", "must not be negative")
	}

	change := &model.OrderChange{
		SourceID:          int64(p.ID),
		FinancialStatus:   p.FinancialStatus,
		FulfillmentStatus: p.FulfillmentStatus,
		TotalPrice:        p.TotalPrice,
		Currency:          p.Currency,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.OrderNumber != nil {
		s := string(*p.OrderNumber)
		change.OrderNumber = &s
	}

	if p.Customer != nil {
		if p.Customer.ID <= 0 {
			return nil, invalid("customer.id", "customer id is required")
		}
		c := &model.Customer{SourceID: int64(p.Customer.ID)}
		assign(&c.Email, p.Customer.Email)
		assign(&c.FirstName, p.Customer.FirstName)
		assign(&c.LastName, p.Customer.LastName)
		assign(&c.Phone, p.Customer.Phone)
		if c.Email == "" {
			assign(&c.Email, p.Email)
		}
		change.Customer = c
	}

	if p.LineItems != nil {
		change.HasItems = true
		change.Items = make([]model.OrderItem, 0, len(*p.LineItems))
		for i, li := range *p.LineItems {
			if li.Quantity < 0 {
				return nil, invalid(fmt.Sprintf("line_items[%d].quantity", i), "must not be negative")
			}
			if li.Price.IsNegative() {
				return nil, invalid(fmt.Sprintf("line_items[%d].price", i), "must not be negative")
			}
			change.Items = append(change.Items, model.OrderItem{
				ProductSourceID: optionalID(li.ProductID),
				VariantSourceID: optionalID(li.VariantID),
				Title:           li.Title,
				Quantity:        li.Quantity,
				UnitPrice:       li.Price,
			})
		}
	}

	return change, nil
}

// DecodeOrderDelete extracts the order id from an orders/delete payload.
func DecodeOrderDelete(body []byte) (int64, error) {
	var p struct {
		ID flexID `json:"id"`
	}
	if err := decode(body, &p); err != nil {
		return 0, err
	}
	if p.ID <= 0 {
		return 0, invalid("id", "order id is required")
	}
	return int64(p.ID), nil
}

// DecodeProduct decodes a products/update payload. The first variant's price
// is taken as the product price.
func DecodeProduct(body []byte) (*model.ProductChange, error) {
	var p productPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, invalid("id", "product id is required")
	}

	change := &model.ProductChange{
		SourceID:          int64(p.ID),
		Title:             p.Title,
		Description:       p.BodyHTML,
		Vendor:            p.Vendor,
		Category:          p.ProductType,
		Status:            p.Status,
		PlatformCreatedAt: p.CreatedAt,
		PlatformUpdatedAt: p.UpdatedAt,
	}
	if p.Image != nil {
		change.ImageURL = p.Image.Src
	}
	if len(p.Variants) > 0 && p.Variants[0].Price.Valid {
		if p.Variants[0].Price.Decimal.IsNegative() {
			return nil, invalid("variants[0].price", "must not be negative")
		}
		change.Price = p.Variants[0].Price
	}
	return change, nil
}

func assign(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

func optionalID(id *flexID) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := int64(*id)
	return &v
}
