package composer_test

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-notification-service/internal/composer"
)

func TestShortOrderID(t *testing.T) {
	assert.Equal(t, "ORDER123", composer.ShortOrderID("ORDER12345"))
	assert.Equal(t, "ABCDEFGH", composer.ShortOrderID("ABCDEFGH"))
	assert.Equal(t, "abc", composer.ShortOrderID("abc"))
	assert.Equal(t, "", composer.ShortOrderID(""))

	short := composer.ShortOrderID("ORDÉR-ÜNÏCØDE")
	assert.Equal(t, "ORDÉR-ÜN", short)
	assert.True(t, utf8.ValidString(short))
	assert.True(t, utf8.ValidString(composer.OrderStatus("confirmed", "ÅÅÅÅÅÅÅÅÅ", 10).Body))
}

func TestFormatTotal(t *testing.T) {
	assert.Equal(t, "450", composer.FormatTotal(450))
	assert.Equal(t, "450.50", composer.FormatTotal(450.5))
	assert.Equal(t, "0", composer.FormatTotal(0))
}

func TestOrderStatus(t *testing.T) {
	testCases := []struct {
		status        string
		expectedTitle string
		bodyContains  []string
	}{
		{"confirmed", "Order Confirmed", []string{"ORDER123", "450"}},
		{"CONFIRMED", "Order Confirmed", []string{"ORDER123", "450"}},
		{"preparing", "Kitchen is Preparing", []string{"ORDER123"}},
		{"out_for_delivery", "Out for Delivery", []string{"ORDER123", "20-30 minutes"}},
		{"Delivered", "Delivered", []string{"ORDER123"}},
		{"cancelled", "Cancelled", []string{"ORDER123"}},
		{"refunded", "Status Updated", []string{"ORDER123", "refunded"}},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			p := composer.OrderStatus(tc.status, "ORDER12345", 450)

			assert.Equal(t, tc.expectedTitle, p.Title)
			for _, s := range tc.bodyContains {
				assert.Contains(t, p.Body, s)
			}
			assert.NotContains(t, p.Body, "ORDER12345")
		})
	}
}

func TestOrderStatus_DataCarriesFullID(t *testing.T) {
	p := composer.OrderStatus("confirmed", "ORDER12345", 450)

	assert.Equal(t, "ORDER12345", p.Data["orderId"])
	assert.Equal(t, "order_status", p.Data["type"])
	assert.Equal(t, "confirmed", p.Data["status"])
	assert.Equal(t, "450", p.Data["orderTotal"])

	require.NotNil(t, p.Hints)
	assert.Equal(t, "order_updates", p.Hints.AndroidChannelID)
	assert.Equal(t, "high", p.Hints.AndroidPriority)
	require.NotNil(t, p.Hints.APNSBadge)
	assert.Equal(t, 1, *p.Hints.APNSBadge)
}

func TestOrderStatus_ShortIDUnchanged(t *testing.T) {
	p := composer.OrderStatus("preparing", "A1B2", 10)
	assert.Contains(t, p.Body, "#A1B2.")
	assert.Equal(t, "A1B2", p.Data["orderId"])
}

func TestOrderStatus_Deterministic(t *testing.T) {
	a := composer.OrderStatus("out_for_delivery", "XYZ987654321", 99.99)
	b := composer.OrderStatus("out_for_delivery", "XYZ987654321", 99.99)
	assert.Equal(t, a, b)
}

func TestPromotion(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	p := composer.Promotion("Flash Sale", "50% off biryani", "https://img/x.png", now)

	assert.Equal(t, "Flash Sale", p.Title)
	assert.Equal(t, "50% off biryani", p.Body)
	assert.Equal(t, "https://img/x.png", p.ImageURL)
	assert.Equal(t, "promotion", p.Data["type"])
	assert.Equal(t, "1700000000000", p.Data["timestamp"])
	require.NotNil(t, p.Hints)
	assert.Equal(t, "promotions", p.Hints.AndroidChannelID)
}

func TestWelcome(t *testing.T) {
	p := composer.Welcome(time.UnixMilli(42))
	assert.Equal(t, composer.WelcomeTitle, p.Title)
	assert.Equal(t, "welcome", p.Data["type"])
	assert.Nil(t, p.Hints)
}
