// Package stream provides the DynamoDB Streams handler that cleans up
// reservations orphaned by product removal.
package stream

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/giftlist/internal/keys"
	"github.com/jacentio/giftlist/registry"
)

// Cleaner is the slice of the record manager the handler needs.
// *registry.Manager satisfies it.
type Cleaner interface {
	ListReservations(ctx context.Context, listID, productID string) ([]registry.ReservedLine, error)
	CancelOrphanedLine(ctx context.Context, line registry.ReservedLine) error
}

// Handler processes DynamoDB stream events for reservation cleanup.
type Handler struct {
	cleaner Cleaner
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(cleaner Cleaner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cleaner: cleaner,
		logger:  logger,
	}
}

// HandleProductRemoval cancels the outstanding reservations of removed
// products: each orphaned reserved line is deleted and its reservation
// record marked cancelled, so a stale emailed purchase link fails naming
// the state. This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleProductRemoval(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	sk := getStringAttr(record.Change.Keys, "sk")
	productID, ok := keys.SplitProduct(sk)
	if !ok {
		return nil // Not a product row
	}
	listID := getStringAttr(record.Change.OldImage, "list_id")
	if listID == "" {
		return nil
	}

	lines, err := h.cleaner.ListReservations(ctx, listID, productID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	h.logger.Info("cancelling reservations for removed product",
		"listID", listID,
		"productID", productID,
		"lineCount", len(lines),
	)

	for _, line := range lines {
		err := h.cleaner.CancelOrphanedLine(ctx, line)
		switch {
		case err == nil:
		case isAlreadyGone(err):
			// Another invocation got there first; idempotent.
		default:
			h.logger.Warn("failed to cancel orphaned line",
				"listID", line.ListID,
				"productID", line.ProductID,
				"userID", line.UserID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func isAlreadyGone(err error) bool {
	return errors.Is(err, registry.ErrConflict) || errors.Is(err, registry.ErrReservationNotFound)
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		return v.String()
	}
	return ""
}
