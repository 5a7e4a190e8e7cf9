package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"capital-creator/marketplace-backend/internal/identity"
	"capital-creator/marketplace-backend/internal/settlement"
)

// ContactLookup resolves a wallet address to its contact details
type ContactLookup interface {
	Contact(ctx context.Context, address string) (*Contact, error)
}

// ContactLookupFunc adapts a function to ContactLookup
type ContactLookupFunc func(ctx context.Context, address string) (*Contact, error)

func (f ContactLookupFunc) Contact(ctx context.Context, address string) (*Contact, error) {
	return f(ctx, address)
}

// Pusher delivers realtime messages to connected wallets
type Pusher interface {
	SendToUser(userID string, message Message) error
}

// ServiceConfig contains service configuration
type ServiceConfig struct {
	// display symbol of the settlement token, e.g. USDC
	TokenSymbol string
	// printf pattern taking the transaction reference; empty disables links
	ExplorerURL string
	SendTimeout time.Duration
}

// Service fans settlement and identity events out to email, SMS and
// websocket channels. A nil channel is disabled.
type Service struct {
	contacts ContactLookup
	email    *EmailChannel
	sms      *SMSChannel
	pusher   Pusher
	config   ServiceConfig
	logger   *zap.Logger
}

// NewService creates a new notification service
func NewService(contacts ContactLookup, email *EmailChannel, sms *SMSChannel, pusher Pusher, config ServiceConfig, logger *zap.Logger) *Service {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &Service{
		contacts: contacts,
		email:    email,
		sms:      sms,
		pusher:   pusher,
		config:   config,
		logger:   logger,
	}
}

// OnSettled implements settlement.SaleListener
func (s *Service) OnSettled(ctx context.Context, event settlement.SaleEvent) error {
	delivery, err := s.NotifySale(ctx, event)
	if err != nil {
		return err
	}
	if delivery.Status == StatusFailed {
		return fmt.Errorf("sale confirmation for %s failed on every channel", event.TxReference)
	}
	return nil
}

// NotifySale sends the sale confirmation to the payee. A payee without an
// email on file is skipped on that channel, not failed.
func (s *Service) NotifySale(ctx context.Context, event settlement.SaleEvent) (*Delivery, error) {
	payee := string(event.Payee)
	contact, err := s.contacts.Contact(ctx, payee)
	if err != nil {
		return nil, fmt.Errorf("failed to look up contact for %s: %w", payee, err)
	}

	data := s.saleConfirmation(event, contact)
	delivery := &Delivery{
		Recipient: payee,
		Kind:      KindSaleConfirmation,
		Channels:  make(map[string]ChannelDeliveryStatus),
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()

	if s.email != nil {
		delivery.Channels[ChannelEmail] = s.sendEmail(ctx, contact, data)
	}
	if s.sms != nil {
		delivery.Channels[ChannelSMS] = s.sendSMS(ctx, contact, data)
	}
	if s.pusher != nil {
		delivery.Channels[ChannelWebSocket] = s.push(payee, KindSaleConfirmation, event)
	}

	delivery.Status = overallStatus(delivery.Channels)
	s.logDelivery(delivery, zap.String("tx", event.TxReference))
	return delivery, nil
}

// OnVerified implements identity.Listener
func (s *Service) OnVerified(ctx context.Context, binding identity.Binding) {
	if s.pusher == nil {
		return
	}
	status := s.push(binding.ProfileID, KindIdentityVerified, binding)
	s.logDelivery(&Delivery{
		Recipient: binding.ProfileID,
		Kind:      KindIdentityVerified,
		Status:    status.Status,
		Channels:  map[string]ChannelDeliveryStatus{ChannelWebSocket: status},
	}, zap.String("handle", binding.Handle))
}

// OnRejected implements identity.Listener
func (s *Service) OnRejected(ctx context.Context, profileID, reason string) {
	if s.pusher == nil {
		return
	}
	status := s.push(profileID, KindIdentityRejected, map[string]string{"reason": reason})
	s.logDelivery(&Delivery{
		Recipient: profileID,
		Kind:      KindIdentityRejected,
		Status:    status.Status,
		Channels:  map[string]ChannelDeliveryStatus{ChannelWebSocket: status},
	})
}

func (s *Service) saleConfirmation(event settlement.SaleEvent, contact *Contact) SaleConfirmation {
	symbol := s.config.TokenSymbol
	if symbol == "" {
		symbol = string(event.Token)
	}

	data := SaleConfirmation{
		RecipientName: contact.Name,
		ItemID:        event.ItemID,
		Buyer:         string(event.Buyer),
		Amount:        settlement.FormatMinorUnits(event.PayeeAmount, event.Decimals),
		Fee:           settlement.FormatMinorUnits(event.TreasuryAmount, event.Decimals),
		Total:         settlement.FormatMinorUnits(event.AmountPaid, event.Decimals),
		Token:         symbol,
		TxReference:   event.TxReference,
		SettledAt:     event.SettledAt,
	}
	if s.config.ExplorerURL != "" {
		data.ExplorerURL = fmt.Sprintf(s.config.ExplorerURL, event.TxReference)
	}
	return data
}

func (s *Service) sendEmail(ctx context.Context, contact *Contact, data SaleConfirmation) ChannelDeliveryStatus {
	status := newStatus(ChannelEmail)
	if strings.TrimSpace(contact.Email) == "" {
		s.logger.Info("Payee has no email on file, skipping sale confirmation",
			zap.String("payee", contact.Address))
		status.Status = StatusSkipped
		return status
	}

	email, err := RenderSaleEmail(data)
	if err != nil {
		return failed(status, err)
	}
	id, err := s.email.Send(ctx, contact.Email, email)
	if err != nil {
		return failed(status, err)
	}
	return sent(status, id)
}

func (s *Service) sendSMS(ctx context.Context, contact *Contact, data SaleConfirmation) ChannelDeliveryStatus {
	status := newStatus(ChannelSMS)
	if strings.TrimSpace(contact.Phone) == "" {
		status.Status = StatusSkipped
		return status
	}

	text, err := RenderSaleSMS(data)
	if err != nil {
		return failed(status, err)
	}
	id, err := s.sms.Send(ctx, contact.Phone, text)
	if err != nil {
		return failed(status, err)
	}
	return sent(status, id)
}

func (s *Service) push(address, kind string, payload any) ChannelDeliveryStatus {
	status := newStatus(ChannelWebSocket)

	data, err := json.Marshal(map[string]any{"kind": kind, "payload": payload})
	if err != nil {
		return failed(status, err)
	}

	err = s.pusher.SendToUser(address, Message{
		Type:      WSMessageTypeNotification,
		Data:      data,
		Timestamp: time.Now(),
		Channel:   "private",
		Target:    address,
	})
	if errors.Is(err, ErrNotConnected) {
		status.Status = StatusSkipped
		return status
	}
	if err != nil {
		return failed(status, err)
	}

	status.Status = StatusDelivered
	deliveredAt := time.Now()
	status.DeliveredAt = &deliveredAt
	return status
}

func (s *Service) logDelivery(d *Delivery, fields ...zap.Field) {
	fields = append(fields,
		zap.String("recipient", d.Recipient),
		zap.String("kind", d.Kind),
		zap.String("status", d.Status))
	for channel, status := range d.Channels {
		if status.ErrorMessage != nil {
			fields = append(fields, zap.String(strings.ToLower(channel)+"_error", *status.ErrorMessage))
		}
	}

	if d.Status == StatusFailed {
		s.logger.Warn("Notification delivery failed", fields...)
		return
	}
	s.logger.Info("Notification processed", fields...)
}

// ErrNotConnected is returned by a Pusher when the wallet has no live socket
var ErrNotConnected = errors.New("user not connected")

func newStatus(channel string) ChannelDeliveryStatus {
	now := time.Now()
	return ChannelDeliveryStatus{Channel: channel, Status: StatusPending, SentAt: &now}
}

func sent(status ChannelDeliveryStatus, providerID string) ChannelDeliveryStatus {
	status.Status = StatusSent
	if providerID != "" {
		status.ProviderID = &providerID
	}
	return status
}

func failed(status ChannelDeliveryStatus, err error) ChannelDeliveryStatus {
	msg := err.Error()
	status.Status = StatusFailed
	status.ErrorMessage = &msg
	return status
}

// overallStatus is FAILED only when something was attempted and nothing
// got through
func overallStatus(channels map[string]ChannelDeliveryStatus) string {
	attempted, ok := 0, 0
	for _, status := range channels {
		switch status.Status {
		case StatusSkipped:
			continue
		case StatusSent, StatusDelivered:
			ok++
		}
		attempted++
	}

	switch {
	case attempted == 0:
		return StatusSkipped
	case ok == 0:
		return StatusFailed
	default:
		return StatusSent
	}
}
