package notifications

import (
	"encoding/json"
	"time"
)

// Contact is where a wallet owner wants to be reached
type Contact struct {
	Address string
	Name    string
	Email   string
	Phone   string
}

// SaleConfirmation is the data rendered into a payee's sale notification
type SaleConfirmation struct {
	RecipientName string
	ItemID        string
	Buyer         string
	Amount        string
	Fee           string
	Total         string
	Token         string
	TxReference   string
	ExplorerURL   string
	SettledAt     time.Time
}

// Message is the frame pushed to websocket clients
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Channel   string          `json:"channel"`
	Target    string          `json:"target"`
	Source    string          `json:"source,omitempty"`
}

// ChannelDeliveryStatus represents delivery status per channel
type ChannelDeliveryStatus struct {
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	ProviderID   *string    `json:"provider_id"`
	ErrorMessage *string    `json:"error_message"`
	SentAt       *time.Time `json:"sent_at"`
	DeliveredAt  *time.Time `json:"delivered_at"`
}

// Delivery is the outcome of one notification across its channels
type Delivery struct {
	Recipient string                           `json:"recipient"`
	Kind      string                           `json:"kind"`
	Status    string                           `json:"status"`
	Channels  map[string]ChannelDeliveryStatus `json:"channels"`
}

const (
	// Notification channels
	ChannelEmail     = "EMAIL"
	ChannelSMS       = "SMS"
	ChannelWebSocket = "WEBSOCKET"

	// Notification statuses
	StatusPending   = "PENDING"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusSkipped   = "SKIPPED"
	StatusFailed    = "FAILED"

	// Notification kinds
	KindSaleConfirmation = "sale_confirmation"
	KindIdentityVerified = "identity_verified"
	KindIdentityRejected = "identity_rejected"

	// WebSocket message types
	WSMessageTypeNotification = "notification"
	WSMessageTypeStatus       = "status"
	WSMessageTypePresence     = "presence"
)
