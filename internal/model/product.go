package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the local record of a platform product, keyed by SourceID.
type Product struct {
	ID                int64           `json:"id"`
	SourceID          int64           `json:"source_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Vendor            string          `json:"vendor,omitempty"`
	Category          string          `json:"category,omitempty"`
	Status            string          `json:"status,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	Price             decimal.Decimal `json:"price"`
	PlatformCreatedAt *time.Time      `json:"platform_created_at,omitempty"`
	PlatformUpdatedAt *time.Time      `json:"platform_updated_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Version is PlatformUpdatedAt in unix micros, 0 when unknown.
func (p *Product) Version() int64 {
	return versionOf(p.PlatformUpdatedAt)
}

// ProductChange is one decoded product payload. Nil fields were absent.
type ProductChange struct {
	SourceID          int64
	Title             *string
	Description       *string
	Vendor            *string
	Category          *string
	Status            *string
	ImageURL          *string
	Price             decimal.NullDecimal
	PlatformCreatedAt *time.Time
	PlatformUpdatedAt *time.Time
}

// Version returns the change's ordering version, 0 when unversioned.
func (c *ProductChange) Version() int64 {
	return versionOf(c.PlatformUpdatedAt)
}

// ApplyTo copies every present field of the change onto p.
func (c *ProductChange) ApplyTo(p *Product) {
	p.SourceID = c.SourceID
	setString(&p.Title, c.Title)
	setString(&p.Description, c.Description)
	setString(&p.Vendor, c.Vendor)
	setString(&p.Category, c.Category)
	setString(&p.Status, c.Status)
	setString(&p.ImageURL, c.ImageURL)
	if c.Price.Valid {
		p.Price = c.Price.Decimal
	}
	if c.PlatformCreatedAt != nil && p.PlatformCreatedAt == nil {
		t := c.PlatformCreatedAt.UTC()
		p.PlatformCreatedAt = &t
	}
	if c.PlatformUpdatedAt != nil {
		t := c.PlatformUpdatedAt.UTC()
		p.PlatformUpdatedAt = &t
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
