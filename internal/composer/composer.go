// Package composer maps order and account events to push payloads.
// Every function here is pure: the same input always yields the same payload.
package composer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const (
	shortIDLen = 8

	channelOrderUpdates = "order_updates"
	channelPromotions   = "promotions"

	WelcomeTitle = "Welcome to The Turmeric!"
	// WelcomePushBody is shorter than the history body so it fits a banner.
	WelcomePushBody    = "Thanks for joining us! Explore our delicious menu and place your first order."
	WelcomeHistoryBody = "Thanks for joining us! Explore our delicious menu and place your first order to get started. Enjoy exclusive offers and fast delivery!"
)

// ShortOrderID truncates an order id to its first 8 characters for display.
func ShortOrderID(orderID string) string {
	if utf8.RuneCountInString(orderID) <= shortIDLen {
		return orderID
	}
	return string([]rune(orderID)[:shortIDLen])
}

// FormatTotal renders an order total without trailing decimals when it is integral.
func FormatTotal(total float64) string {
	if total == float64(int64(total)) {
		return strconv.FormatInt(int64(total), 10)
	}
	return strconv.FormatFloat(total, 'f', 2, 64)
}

// OrderStatus composes the payload for an order status change.
// Unknown statuses fall through to a generic "Status Updated" payload.
func OrderStatus(status, orderID string, total float64) dispatch.NotificationPayload {
	short := ShortOrderID(orderID)
	totalStr := FormatTotal(total)

	var title, body string
	switch strings.ToLower(status) {
	case "confirmed":
		title = "Order Confirmed"
		body = fmt.Sprintf("Great! Your order #%s worth ₹%s has been confirmed. We'll start preparing it soon.", short, totalStr)
	case "preparing":
		title = "Kitchen is Preparing"
		body = fmt.Sprintf("Our chefs are carefully preparing your order #%s. It will be ready soon!", short)
	case "out_for_delivery":
		title = "Out for Delivery"
		body = fmt.Sprintf("Your order #%s is on its way! Expected delivery in 20-30 minutes.", short)
	case "delivered":
		title = "Delivered"
		body = fmt.Sprintf("Your order #%s has been delivered successfully. Enjoy your meal!", short)
	case "cancelled":
		title = "Cancelled"
		body = fmt.Sprintf("Your order #%s has been cancelled. If you have any questions, please contact support.", short)
	default:
		title = "Status Updated"
		body = fmt.Sprintf("Your order #%s status has been updated to %s.", short, status)
	}

	badge := 1
	return dispatch.NotificationPayload{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":       string(dispatch.CategoryOrderStatus),
			"orderId":    orderID,
			"status":     status,
			"orderTotal": totalStr,
		},
		Hints: &dispatch.PlatformHints{
			AndroidChannelID: channelOrderUpdates,
			AndroidPriority:  "high",
			DefaultSound:     true,
			DefaultVibrate:   true,
			APNSSound:        "default",
			APNSBadge:        &badge,
		},
	}
}

// Promotion composes a campaign payload. now stamps the data payload so the
// client can order promotions; callers pass a fixed time for deterministic output.
func Promotion(title, body, imageURL string, now time.Time) dispatch.NotificationPayload {
	return dispatch.NotificationPayload{
		Title:    title,
		Body:     body,
		ImageURL: imageURL,
		Data: map[string]string{
			"type":      string(dispatch.CategoryPromotion),
			"timestamp": strconv.FormatInt(now.UnixMilli(), 10),
		},
		Hints: &dispatch.PlatformHints{
			AndroidChannelID: channelPromotions,
			AndroidPriority:  "normal",
			DefaultSound:     true,
		},
	}
}

// Welcome composes the push sent to a newly registered user.
func Welcome(now time.Time) dispatch.NotificationPayload {
	return dispatch.NotificationPayload{
		Title: WelcomeTitle,
		Body:  WelcomePushBody,
		Data: map[string]string{
			"type":      string(dispatch.CategoryWelcome),
			"timestamp": strconv.FormatInt(now.UnixMilli(), 10),
		},
	}
}
