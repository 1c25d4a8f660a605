package service

import (
	"shopsync-api/internal/model"
)

// stale reports whether an incoming version is older than the stored one.
// Unversioned payloads or rows are never stale.
func stale(incoming, stored int64) bool {
	return incoming != 0 && stored != 0 && incoming < stored
}

// mergeOrder folds an order payload into the stored order.
//
// Scalars from a stale payload only fill fields that are still empty. Items
// are replaced wholesale when the payload carries line_items and is not older
// than the payload that last set them. Absent fields never clear anything.
func mergeOrder(current model.Order, change *model.OrderChange) (model.Order, bool) {
	incoming := change.Version()
	old := stale(incoming, current.Version)

	mergeString(&current.OrderNumber, change.OrderNumber, old)
	mergeString(&current.FinancialStatus, change.FinancialStatus, old)
	mergeString(&current.FulfillmentStatus, change.FulfillmentStatus, old)
	mergeString(&current.Currency, change.Currency, old)

	if change.TotalPrice.Valid && (!old || current.TotalPrice.IsZero()) {
		current.TotalPrice = change.TotalPrice.Decimal
	}
	if change.Customer != nil && (!old || current.CustomerSourceID == nil) {
		id := change.Customer.SourceID
		current.CustomerSourceID = &id
	}
	if incoming > current.Version {
		current.Version = incoming
	}

	if !change.HasItems || stale(incoming, current.ItemsVersion) {
		return current, false
	}
	current.Items = append([]model.OrderItem(nil), change.Items...)
	if incoming > current.ItemsVersion {
		current.ItemsVersion = incoming
	}
	return current, true
}

func mergeString(dst *string, src *string, old bool) {
	if src == nil {
		return
	}
	if old && *dst != "" {
		return
	}
	*dst = *src
}

// mergeProduct applies a product payload unless it is older than the stored
// product, in which case the stored row is left untouched.
func mergeProduct(current model.Product, change *model.ProductChange) (model.Product, bool) {
	if stale(change.Version(), current.Version()) {
		return current, false
	}
	change.ApplyTo(&current)
	return current, true
}
