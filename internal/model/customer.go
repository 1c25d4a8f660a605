package model

import "time"

// Customer is the local record of a platform customer, keyed by SourceID.
// Orders reference customers by source id only.
type Customer struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"source_id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
