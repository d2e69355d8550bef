// Package types defines core data structures for mailorders.
package types

// Status is the canonical lifecycle stage of a purchase order.
type Status string

// Status constants.
const (
	StatusOrdered   Status = "Ordered"
	StatusShipped   Status = "Shipped"
	StatusDelayed   Status = "Delayed"
	StatusDelivered Status = "Delivered"
	StatusCanceled  Status = "Canceled"
	StatusUnknown   Status = "Unknown"
)

// ValidStatuses is the set of statuses a classified event may carry.
var ValidStatuses = []Status{StatusOrdered, StatusShipped, StatusDelayed, StatusDelivered, StatusCanceled}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if string(v) == s {
			return true
		}
	}
	return false
}

// OrderType distinguishes regular orders from expedited ("Xpress") ones.
type OrderType string

const (
	OrderTypeRegular   OrderType = "regular"
	OrderTypeExpedited OrderType = "expedited"
)

// Shipping status values stored on an OrderRecord.
const (
	ShippingOrdered = "ordered"
	ShippingShipped = "shipped"
)

// MessagePart is one node of a raw message body tree. Data is base64url encoded.
type MessagePart struct {
	MimeType string         `json:"mime_type"`
	Filename string         `json:"filename,omitempty"`
	Data     string         `json:"data,omitempty"`
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// RawMessage is a mail message as delivered by the message source.
type RawMessage struct {
	ID       string       `json:"id"`
	ThreadID string       `json:"thread_id,omitempty"`
	From     string       `json:"from"`
	Subject  string       `json:"subject"`
	Date     string       `json:"date"`
	Payload  *MessagePart `json:"payload,omitempty"`
}

// OrderRecord is the structured extraction result for one message.
// Every field is optional; absence is a valid outcome.
type OrderRecord struct {
	Merchant               string    `json:"merchant,omitempty"`
	OrderNumber            string    `json:"order_number,omitempty"`
	OrderType              OrderType `json:"order_type,omitempty"`
	ProductName            string    `json:"product_name,omitempty"`
	ProductVariant         string    `json:"product_variant,omitempty"`
	Size                   string    `json:"size,omitempty"`
	Condition              string    `json:"condition,omitempty"`
	StyleID                string    `json:"style_id,omitempty"`
	ProductImageURL        string    `json:"product_image_url,omitempty"`
	PurchasePrice          float64   `json:"purchase_price,omitempty"`
	ProcessingFee          float64   `json:"processing_fee,omitempty"`
	ShippingFee            float64   `json:"shipping_fee,omitempty"`
	ShippingType           string    `json:"shipping_type,omitempty"`
	TotalAmount            float64   `json:"total_amount,omitempty"`
	Currency               string    `json:"currency,omitempty"`
	EstimatedDeliveryStart string    `json:"estimated_delivery_start,omitempty"`
	EstimatedDeliveryEnd   string    `json:"estimated_delivery_end,omitempty"`
	PurchaseDate           string    `json:"purchase_date,omitempty"`
	TrackingNumber         string    `json:"tracking_number,omitempty"`
	Carrier                string    `json:"carrier,omitempty"`
	ShippingStatus         string    `json:"shipping_status,omitempty"`

	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	EmailDate string `json:"email_date,omitempty"`
	MessageID string `json:"message_id"`
}

// IsPurchaseSignal reports whether the record identifies an order at all.
func (r *OrderRecord) IsPurchaseSignal() bool {
	return r != nil && r.OrderNumber != ""
}

// ClassifiedEvent is an OrderRecord with a lifecycle status and tie-break priority.
type ClassifiedEvent struct {
	OrderRecord
	Status   Status `json:"status"`
	Priority int    `json:"priority"`
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
}

// ConsolidatedOrder is the canonical view of every message seen for one order number.
type ConsolidatedOrder struct {
	OrderNumber  string          `json:"order_number"`
	Canonical    ClassifiedEvent `json:"canonical"`
	StatusesSeen []Status        `json:"statuses_seen"`
	MessageCount int             `json:"message_count"`
	MessageIDs   []string        `json:"message_ids,omitempty"`
}

// TrackingCandidate is one tracking-number match and its verdict.
type TrackingCandidate struct {
	Value    string `json:"value"`
	Pattern  string `json:"pattern"`
	Carrier  string `json:"carrier"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SearchStrategy is a named query template used by reconciliation.
// Query may reference {from}, {order} and {partial}.
type SearchStrategy struct {
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	Priority       int    `json:"priority" yaml:"priority" mapstructure:"priority"`
	Query          string `json:"query" yaml:"query" mapstructure:"query"`
	Limit          int    `json:"limit" yaml:"limit" mapstructure:"limit"`
	NeedsFiltering bool   `json:"needs_filtering" yaml:"needs_filtering" mapstructure:"needs_filtering"`
}

// StoredOrder is a persisted consolidated order.
type StoredOrder struct {
	ConsolidatedOrder
	ReconciledBy string `json:"reconciled_by,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// HistoryEntry is one message-level status observation for an order.
type HistoryEntry struct {
	OrderNumber string `json:"order_number"`
	MessageID   string `json:"message_id"`
	Status      Status `json:"status"`
	Priority    int    `json:"priority"`
	Subject     string `json:"subject"`
	EmailDate   string `json:"email_date,omitempty"`
}

// SyncResult holds the result of syncing a single account.
type SyncResult struct {
	RunID     string `json:"run_id,omitempty"`
	Account   string `json:"account"`
	Scanned   int    `json:"scanned"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Filtered  int    `json:"filtered"`
	Extracted int    `json:"extracted"`
	Orders    int    `json:"orders"`
	Error     string `json:"error,omitempty"`
}

// SyncSummary holds the result of syncing all accounts.
type SyncSummary struct {
	Accounts    []SyncResult `json:"accounts"`
	TotalOrders int          `json:"total_orders"`
	TotalInDB   int          `json:"total_in_db"`
}

// SyncRun is a logged sync run.
type SyncRun struct {
	SyncResult
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}
