package tools

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// OrderItem is one line item on an order.
type OrderItem struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	SKU      string  `json:"sku"`
}

// Order is one customer order record.
type Order struct {
	OrderID           string      `json:"order_id"`
	CustomerEmail     string      `json:"customer_email"`
	OrderDate         time.Time   `json:"order_date"`
	Status            string      `json:"status"`
	Items             []OrderItem `json:"items"`
	Total             float64     `json:"total"`
	ShippingAddress   string      `json:"shipping_address"`
	TrackingNumber    string      `json:"tracking_number"`
	DeliveryDate      *time.Time  `json:"delivery_date,omitempty"`
	EstimatedDelivery *time.Time  `json:"estimated_delivery,omitempty"`
}

// OrderLookup resolves order numbers mentioned in free text against the
// order store. Backed by fixture data in place of an order service.
type OrderLookup struct {
	orders map[string]Order
}

var orderNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`#(\d+)`),
	regexp.MustCompile(`(?i)order\s+#?(\d+)`),
	regexp.MustCompile(`(?i)order\s+number\s+#?(\d+)`),
}

// NewOrderLookup creates a lookup over the sample order set.
func NewOrderLookup() *OrderLookup {
	return &OrderLookup{orders: sampleOrders(time.Now())}
}

// Lookup extracts an order number from the query and returns formatted order
// details. The second return is false when the query names no order at all;
// an unknown order number still returns a message.
func (l *OrderLookup) Lookup(query string) (string, bool) {
	num := ExtractOrderNumber(query)
	if num == "" {
		return "", false
	}
	order, ok := l.orders[num]
	if !ok {
		return fmt.Sprintf("Order #%s not found in system.", num), true
	}
	return formatOrder(order), true
}

// Order returns the raw order record.
func (l *OrderLookup) Order(orderID string) (Order, bool) {
	order, ok := l.orders[orderID]
	return order, ok
}

// WithinRefundWindow reports whether the order was placed at most the given
// number of days ago. Unknown orders are never within the window.
func (l *OrderLookup) WithinRefundWindow(orderID string, days int) bool {
	order, ok := l.orders[orderID]
	if !ok {
		return false
	}
	return time.Since(order.OrderDate) <= time.Duration(days)*24*time.Hour
}

// ExtractOrderNumber finds the first order number mentioned in the text,
// matching forms like "#12345", "order 12345" or "order number #12345".
func ExtractOrderNumber(text string) string {
	for _, p := range orderNumberPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func formatOrder(order Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s\n", order.OrderID)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(order.Status))
	fmt.Fprintf(&b, "Order Date: %s\n", order.OrderDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total: $%.2f\n\nItems:\n", order.Total)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  - %s (Qty: %d) - $%.2f\n", item.Product, item.Quantity, item.Price)
	}
	fmt.Fprintf(&b, "\nShipping: %s\n", order.ShippingAddress)
	fmt.Fprintf(&b, "Tracking: %s", order.TrackingNumber)
	if order.DeliveryDate != nil {
		fmt.Fprintf(&b, "\nDelivered: %s", order.DeliveryDate.Format("2006-01-02"))
	} else if order.EstimatedDelivery != nil {
		fmt.Fprintf(&b, "\nEstimated Delivery: %s", order.EstimatedDelivery.Format("2006-01-02"))
	}
	return b.String()
}

func sampleOrders(now time.Time) map[string]Order {
	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }
	ptr := func(t time.Time) *time.Time { return &t }

	return map[string]Order{
		"12345": {
			OrderID:       "12345",
			CustomerEmail: "customer@example.com",
			OrderDate:     daysAgo(10),
			Status:        "delivered",
			Items: []OrderItem{
				{Product: "iPhone 15", Quantity: 1, Price: 799.00, SKU: "IPHONE15-BLK-128"},
			},
			Total:           799.00,
			ShippingAddress: "123 Main St, Anytown, USA",
			TrackingNumber:  "1Z999AA10123456784",
			DeliveryDate:    ptr(daysAgo(3)),
		},
		"67890": {
			OrderID:       "67890",
			CustomerEmail: "john@example.com",
			OrderDate:     daysAgo(5),
			Status:        "in_transit",
			Items: []OrderItem{
				{Product: "iPhone 15 Pro", Quantity: 1, Price: 999.00, SKU: "IPHONE15PRO-TIT-256"},
			},
			Total:             999.00,
			ShippingAddress:   "456 Oak Ave, Other City, USA",
			TrackingNumber:    "1Z999AA10123456785",
			EstimatedDelivery: ptr(now.AddDate(0, 0, 2)),
		},
		"11111": {
			OrderID:       "11111",
			CustomerEmail: "sarah@example.com",
			OrderDate:     daysAgo(45),
			Status:        "delivered",
			Items: []OrderItem{
				{Product: "iPhone 15", Quantity: 1, Price: 799.00, SKU: "IPHONE15-PINK-256"},
			},
			Total:           799.00,
			ShippingAddress: "789 Elm St, Some Town, USA",
			TrackingNumber:  "1Z999AA10123456786",
			DeliveryDate:    ptr(daysAgo(40)),
		},
	}
}
