package service

import (
	"testing"
	"time"

	"shopsync-api/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func at(minute int) *time.Time {
	t := time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC)
	return &t
}

func TestMergeOrder_NewerOverwritesPresentFieldsOnly(t *testing.T) {
	current := model.Order{
		SourceID:        7,
		OrderNumber:     "#7",
		FinancialStatus: "pending",
		Currency:        "EUR",
		TotalPrice:      decimal.RequireFromString("10"),
		Version:         at(1).UnixMicro(),
		Items:           []model.OrderItem{{Title: "A", Quantity: 1}},
		ItemsVersion:    at(1).UnixMicro(),
	}

	merged, replace := mergeOrder(current, &model.OrderChange{
		SourceID:        7,
		FinancialStatus: strPtr("paid"),
		UpdatedAt:       at(2),
	})

	assert.False(t, replace)
	assert.Equal(t, "paid", merged.FinancialStatus)
	assert.Equal(t, "#7", merged.OrderNumber)
	assert.Equal(t, "EUR", merged.Currency)
	assert.True(t, decimal.RequireFromString("10").Equal(merged.TotalPrice))
	assert.Equal(t, at(2).UnixMicro(), merged.Version)
	assert.Len(t, merged.Items, 1)
}

func TestMergeOrder_StaleOnlyFillsEmptyFields(t *testing.T) {
	current := model.Order{
		SourceID:        7,
		FinancialStatus: "paid",
		Version:         at(5).UnixMicro(),
	}

	merged, replace := mergeOrder(current, &model.OrderChange{
		SourceID:        7,
		OrderNumber:     strPtr("#7"),
		FinancialStatus: strPtr("pending"),
		TotalPrice:      decimal.NewNullDecimal(decimal.RequireFromString("19.98")),
		Customer:        &model.Customer{SourceID: 42},
		UpdatedAt:       at(1),
		HasItems:        true,
		Items:           []model.OrderItem{{Title: "A", Quantity: 1}},
	})

	assert.Equal(t, "paid", merged.FinancialStatus)
	assert.Equal(t, "#7", merged.OrderNumber)
	assert.True(t, decimal.RequireFromString("19.98").Equal(merged.TotalPrice))
	assert.Equal(t, int64(42), *merged.CustomerSourceID)
	assert.Equal(t, at(5).UnixMicro(), merged.Version)

	// Items were never set by a versioned payload, so the older one may set them.
	assert.True(t, replace)
	assert.Len(t, merged.Items, 1)
	assert.Equal(t, at(1).UnixMicro(), merged.ItemsVersion)
}

func TestMergeOrder_StaleItemsIgnored(t *testing.T) {
	current := model.Order{
		Items:        []model.OrderItem{{Title: "B"}},
		ItemsVersion: at(5).UnixMicro(),
		Version:      at(5).UnixMicro(),
	}

	merged, replace := mergeOrder(current, &model.OrderChange{
		HasItems:  true,
		Items:     []model.OrderItem{{Title: "A"}},
		UpdatedAt: at(1),
	})

	assert.False(t, replace)
	assert.Equal(t, "B", merged.Items[0].Title)
}

func TestMergeOrder_UnversionedLastAppliedWins(t *testing.T) {
	current := model.Order{FinancialStatus: "paid", Version: at(5).UnixMicro()}

	merged, replace := mergeOrder(current, &model.OrderChange{
		FinancialStatus: strPtr("refunded"),
		HasItems:        true,
		Items:           []model.OrderItem{},
	})

	assert.Equal(t, "refunded", merged.FinancialStatus)
	assert.True(t, replace)
	assert.Empty(t, merged.Items)
	assert.Equal(t, at(5).UnixMicro(), merged.Version)
}

func TestMergeProduct(t *testing.T) {
	current := model.Product{SourceID: 5, Title: "Widget", PlatformUpdatedAt: at(5)}

	tests := []struct {
		name      string
		change    *model.ProductChange
		wantApply bool
		wantTitle string
	}{
		{"older is discarded", &model.ProductChange{SourceID: 5, Title: strPtr("Old"), PlatformUpdatedAt: at(1)}, false, "Widget"},
		{"same timestamp applies", &model.ProductChange{SourceID: 5, Title: strPtr("Same"), PlatformUpdatedAt: at(5)}, true, "Same"},
		{"newer applies", &model.ProductChange{SourceID: 5, Title: strPtr("New"), PlatformUpdatedAt: at(9)}, true, "New"},
		{"unversioned applies", &model.ProductChange{SourceID: 5, Title: strPtr("Any")}, true, "Any"},
		{"absent title keeps stored", &model.ProductChange{SourceID: 5, PlatformUpdatedAt: at(9)}, true, "Widget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, apply := mergeProduct(current, tt.change)
			assert.Equal(t, tt.wantApply, apply)
			assert.Equal(t, tt.wantTitle, merged.Title)
		})
	}
}
