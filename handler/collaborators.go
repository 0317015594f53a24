package handler

import (
	"context"

	"github.com/jacentio/giftlist/registry"
)

// IdentityResolver turns an auth token into a caller identity. The core
// treats the resolved id as an opaque string; how tokens are minted and
// verified lives upstream.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (registry.Requester, error)
}

// Notification templates sent by the handlers.
const (
	TemplateReserved  = "reservation-confirmed"
	TemplatePurchased = "purchase-confirmed"
)

// Notification is the outbound message contract: a recipient, a template
// identifier and the structured data the template renders.
type Notification struct {
	Recipient string
	Template  string
	Data      map[string]string
}

// Notifier delivers notifications. Delivery is best-effort: a failure is
// logged by the handler, never retried, and never rolls back the already
// committed transaction.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ReservationService is the slice of the record manager the handlers
// orchestrate. *registry.Manager satisfies it.
type ReservationService interface {
	GetList(ctx context.Context, listID string) (*registry.List, error)
	GetProduct(ctx context.Context, listID, productID string) (*registry.Product, error)
	CreateReservation(ctx context.Context, listID, productID string, who registry.Requester, quantity int) (string, error)
	UpdateReservation(ctx context.Context, listID, productID string, who registry.Requester, newQuantity int) error
	CancelReservation(ctx context.Context, listID, productID string, who registry.Requester) error
	ConfirmPurchase(ctx context.Context, reservationID string) (*registry.ReservationRecord, error)
	GetReservation(ctx context.Context, reservationID string) (*registry.ReservationRecord, error)
	DeleteReservationRecord(ctx context.Context, reservationID string, force bool) error
}
