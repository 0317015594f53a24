// Package handler implements the reservation operation handlers: caller
// resolution, existence and ownership checks, the manager call, and
// best-effort notification of the outcome.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/jacentio/giftlist/registry"
)

// ErrUnauthenticated is returned when an operation needs a caller identity
// and the request carries neither a token nor a guest email.
var ErrUnauthenticated = errors.New("handler: authentication or email required")

// Handler orchestrates the reservation operations.
type Handler struct {
	reservations ReservationService
	identity     IdentityResolver
	notifier     Notifier
	logger       *slog.Logger
}

// New creates a Handler. A nil logger falls back to slog.Default.
func New(reservations ReservationService, identity IdentityResolver, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reservations: reservations,
		identity:     identity,
		notifier:     notifier,
		logger:       logger,
	}
}

// ReserveRequest claims units of a product. Guests leave Token empty and
// identify themselves by email.
type ReserveRequest struct {
	Token     string
	ListID    string
	ProductID string
	Quantity  int
	Name      string
	Email     string
}

// ReserveResult carries the generated reservation id, the bearer credential
// for the emailed purchase-confirmation link.
type ReserveResult struct {
	ReservationID string
}

// Reserve claims quantity units of a product for the caller.
func (h *Handler) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	who, err := h.resolve(ctx, req.Token, req.Name, req.Email)
	if err != nil {
		return nil, err
	}
	if _, err := h.reservations.GetList(ctx, req.ListID); err != nil {
		return nil, err
	}
	product, err := h.reservations.GetProduct(ctx, req.ListID, req.ProductID)
	if err != nil {
		return nil, err
	}

	reservationID, err := h.reservations.CreateReservation(ctx, req.ListID, req.ProductID, who, req.Quantity)
	if err != nil {
		return nil, err
	}

	h.logger.Info("reservation created",
		"listID", req.ListID,
		"productID", req.ProductID,
		"reservationID", reservationID,
		"quantity", req.Quantity,
	)
	h.notify(ctx, Notification{
		Recipient: who.Email,
		Template:  TemplateReserved,
		Data: map[string]string{
			"name":          who.Name,
			"product":       product.Title,
			"quantity":      strconv.Itoa(req.Quantity),
			"reservationId": reservationID,
		},
	})
	return &ReserveResult{ReservationID: reservationID}, nil
}

// UpdateRequest changes the quantity of the caller's reservation.
type UpdateRequest struct {
	Token     string
	ListID    string
	ProductID string
	Quantity  int
	Email     string
}

// UpdateReservation changes the quantity of the caller's outstanding
// reservation in place.
func (h *Handler) UpdateReservation(ctx context.Context, req UpdateRequest) error {
	who, err := h.resolve(ctx, req.Token, "", req.Email)
	if err != nil {
		return err
	}
	if err := h.reservations.UpdateReservation(ctx, req.ListID, req.ProductID, who, req.Quantity); err != nil {
		return err
	}
	h.logger.Info("reservation updated",
		"listID", req.ListID,
		"productID", req.ProductID,
		"quantity", req.Quantity,
	)
	return nil
}

// UnreserveRequest cancels the caller's reservation.
type UnreserveRequest struct {
	Token     string
	ListID    string
	ProductID string
	Email     string
}

// Unreserve releases the caller's outstanding reservation. The reservation
// record stays behind as a cancelled audit row.
func (h *Handler) Unreserve(ctx context.Context, req UnreserveRequest) error {
	who, err := h.resolve(ctx, req.Token, "", req.Email)
	if err != nil {
		return err
	}
	if err := h.reservations.CancelReservation(ctx, req.ListID, req.ProductID, who); err != nil {
		return err
	}
	h.logger.Info("reservation cancelled",
		"listID", req.ListID,
		"productID", req.ProductID,
	)
	return nil
}

// PurchaseRequest confirms a purchase via the emailed link. No
// authentication: the reservation id is the capability.
type PurchaseRequest struct {
	ReservationID string
}

// PurchaseResult reports what was purchased.
type PurchaseResult struct {
	ListID    string
	ProductID string
	Quantity  int
}

// Purchase confirms the purchase of a reserved product.
func (h *Handler) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	record, err := h.reservations.ConfirmPurchase(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	h.logger.Info("purchase confirmed",
		"reservationID", req.ReservationID,
		"listID", record.ListID,
		"productID", record.ProductID,
		"quantity", record.Quantity,
	)
	h.notify(ctx, Notification{
		Recipient: record.Email,
		Template:  TemplatePurchased,
		Data: map[string]string{
			"reservationId": record.ReservationID,
			"quantity":      strconv.Itoa(record.Quantity),
		},
	})
	return &PurchaseResult{
		ListID:    record.ListID,
		ProductID: record.ProductID,
		Quantity:  record.Quantity,
	}, nil
}

// DeleteReservationRequest removes a reservation record administratively.
// Only the list owner may do it. Force deletes even a still-reserved
// record, accepting that the product's reserved counter stays overstated.
type DeleteReservationRequest struct {
	Token         string
	ReservationID string
	Force         bool
}

// DeleteReservation removes the global reservation record. It does not
// re-run quantity arithmetic; see DeleteReservationRecord.
func (h *Handler) DeleteReservation(ctx context.Context, req DeleteReservationRequest) error {
	if req.Token == "" {
		return ErrUnauthenticated
	}
	who, err := h.identity.Resolve(ctx, req.Token)
	if err != nil {
		return err
	}
	record, err := h.reservations.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return err
	}
	list, err := h.reservations.GetList(ctx, record.ListID)
	if err != nil {
		return err
	}
	if list.OwnerID != who.ID {
		return registry.ErrNotOwner
	}
	if req.Force && record.State == registry.StateReserved {
		h.logger.Warn("force-deleting a reserved record, product counter will stay overstated",
			"reservationID", req.ReservationID,
			"listID", record.ListID,
			"productID", record.ProductID,
		)
	}
	return h.reservations.DeleteReservationRecord(ctx, req.ReservationID, req.Force)
}

// resolve returns the caller identity: via the identity resolver when a
// token is present, as an email-identified guest otherwise.
func (h *Handler) resolve(ctx context.Context, token, name, email string) (registry.Requester, error) {
	if token != "" {
		return h.identity.Resolve(ctx, token)
	}
	if email == "" {
		return registry.Requester{}, ErrUnauthenticated
	}
	return registry.Requester{Name: name, Email: email}, nil
}

// notify sends best-effort. Failures are logged, never returned: the
// transaction already committed and notifications are outside the
// consistency boundary.
func (h *Handler) notify(ctx context.Context, n Notification) {
	if h.notifier == nil || n.Recipient == "" {
		return
	}
	if err := h.notifier.Send(ctx, n); err != nil {
		h.logger.Warn("notification failed",
			"template", n.Template,
			"recipient", n.Recipient,
			"error", err,
		)
	}
}
