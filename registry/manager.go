package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/giftlist/internal/keys"
	"github.com/jacentio/giftlist/store"
)

// Manager creates, reads and mutates the three denormalized reservation
// records. Every state transition is one atomic multi-item transaction, so
// the product counters, the reserved line and the reservation record are
// never observed out of step.
type Manager struct {
	store *store.Store
}

// NewManager creates a Manager backed by the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// --- Reads ---

// GetList retrieves a list, for existence and ownership checks.
func (m *Manager) GetList(ctx context.Context, listID string) (*List, error) {
	pk, sk := keys.List(listID)
	var l List
	if err := m.get(ctx, store.Key{PK: pk, SK: sk}, &l, ErrListNotFound); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetProduct retrieves a product with its current counters. The returned
// snapshot carries the version every subsequent counter change is
// conditioned on.
func (m *Manager) GetProduct(ctx context.Context, listID, productID string) (*Product, error) {
	pk, sk := keys.Product(listID, productID)
	var p Product
	if err := m.get(ctx, store.Key{PK: pk, SK: sk}, &p, ErrProductNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetReservation retrieves the globally addressable reservation record.
func (m *Manager) GetReservation(ctx context.Context, reservationID string) (*ReservationRecord, error) {
	pk, sk := keys.Reservation(reservationID)
	var r ReservationRecord
	if err := m.get(ctx, store.Key{PK: pk, SK: sk}, &r, ErrReservationNotFound); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReservedLine retrieves one user's outstanding claim on a product.
func (m *Manager) GetReservedLine(ctx context.Context, listID, productID, userID string) (*ReservedLine, error) {
	pk, sk := keys.ReservedLine(listID, productID, userID)
	var line ReservedLine
	if err := m.get(ctx, store.Key{PK: pk, SK: sk}, &line, ErrReservationNotFound); err != nil {
		return nil, err
	}
	return &line, nil
}

// ListReservations returns every outstanding reserved line for a product.
func (m *Manager) ListReservations(ctx context.Context, listID, productID string) ([]ReservedLine, error) {
	pk, _ := keys.Product(listID, productID)
	items, err := m.store.Query(ctx, pk, keys.ReservedLinePrefix(productID))
	if err != nil {
		return nil, err
	}
	var lines []ReservedLine
	if err := attributevalue.UnmarshalListOfMaps(items, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal reserved lines: %w", err)
	}
	return lines, nil
}

func (m *Manager) get(ctx context.Context, key store.Key, out any, notFound error) error {
	item, err := m.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

func (m *Manager) accountExists(ctx context.Context, email string) (bool, error) {
	pk, sk := keys.User(email)
	_, err := m.store.Get(ctx, store.Key{PK: pk, SK: sk})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- State transitions ---

// CreateReservation claims quantity units of a product for the requester
// and returns the generated reservation id. One transaction commits the
// counter increment, the reserved line and the reservation record; the put
// of the line is conditioned on no line existing, so at most one
// reservation per (list, product, user) can ever be live and a retried
// reserve fails with ErrAlreadyReserved instead of double-charging.
func (m *Manager) CreateReservation(ctx context.Context, listID, productID string, who Requester, quantity int) (string, error) {
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}
	if who.ID == "" {
		if who.Email == "" {
			return "", ErrEmailRequired
		}
		exists, err := m.accountExists(ctx, who.Email)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ErrAccountExists
		}
	}

	product, err := m.GetProduct(ctx, listID, productID)
	if err != nil {
		return "", err
	}
	newReserved, err := NewReserved(*product, quantity)
	if err != nil {
		return "", err
	}

	userID := who.LineUserID()
	reservationID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	line := ReservedLine{
		ListID:        listID,
		ProductID:     productID,
		UserID:        userID,
		Quantity:      quantity,
		ReservationID: reservationID,
		Name:          who.Name,
		Email:         who.Email,
	}
	line.PK, line.SK = keys.ReservedLine(listID, productID, userID)

	record := ReservationRecord{
		ReservationID: reservationID,
		ListID:        listID,
		ProductID:     productID,
		UserID:        userID,
		Email:         who.Email,
		Quantity:      quantity,
		State:         StateReserved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	record.PK, record.SK = keys.Reservation(reservationID)

	lineItem, err := attributevalue.MarshalMap(line)
	if err != nil {
		return "", fmt.Errorf("marshal reserved line: %w", err)
	}
	recordItem, err := attributevalue.MarshalMap(record)
	if err != nil {
		return "", fmt.Errorf("marshal reservation record: %w", err)
	}

	notExists := &store.Condition{Expression: "attribute_not_exists(pk)"}
	err = m.store.Transact(ctx,
		m.countersTx(product, newReserved, product.Purchased),
		m.store.TxPut(lineItem, notExists),
		m.store.TxPut(recordItem, notExists),
	)
	if err != nil {
		return "", mapCanceled(err, map[int]error{1: ErrAlreadyReserved})
	}
	return reservationID, nil
}

// UpdateReservation changes the quantity of an outstanding reservation in
// place. The counter delta, the line quantity and the record quantity
// commit together; the line update is conditioned on the quantity the delta
// was computed from.
func (m *Manager) UpdateReservation(ctx context.Context, listID, productID string, who Requester, newQuantity int) error {
	// Ownership is enforced by addressing: the line key embeds the
	// requester's id, so someone else's claim reads as not found.
	line, err := m.GetReservedLine(ctx, listID, productID, who.LineUserID())
	if err != nil {
		return err
	}
	delta, err := Delta(line.Quantity, newQuantity)
	if err != nil {
		return err
	}
	product, err := m.GetProduct(ctx, listID, productID)
	if err != nil {
		return err
	}
	newReserved, err := NewReserved(*product, delta)
	if err != nil {
		return err
	}

	lineUpdate := store.Update{
		Expression: "SET #quantity = :new",
		Condition:  "#quantity = :current AND #rid = :rid",
		Names: map[string]string{
			"#quantity": "quantity",
			"#rid":      "reservation_id",
		},
		Values: map[string]types.AttributeValue{
			":new":     numberAttr(newQuantity),
			":current": numberAttr(line.Quantity),
			":rid":     &types.AttributeValueMemberS{Value: line.ReservationID},
		},
	}
	recordUpdate := store.Update{
		Expression: "SET #quantity = :new, #updated_at = :now",
		Condition:  "#state = :reserved",
		Names: map[string]string{
			"#quantity":   "quantity",
			"#state":      "state",
			"#updated_at": "updated_at",
		},
		Values: map[string]types.AttributeValue{
			":new":      numberAttr(newQuantity),
			":reserved": stateAttr(StateReserved),
			":now":      nowAttr(),
		},
	}

	err = m.store.Transact(ctx,
		m.countersTx(product, newReserved, product.Purchased),
		m.store.TxUpdate(line.Key(), lineUpdate),
		m.store.TxUpdate(recordKey(line.ReservationID), recordUpdate),
	)
	if err != nil {
		return mapCanceled(err, nil)
	}
	return nil
}

// CancelReservation releases an outstanding reservation: the counter
// decrement, the line delete and the record's move to cancelled commit
// together. The record is kept as a cancelled audit row so a stale emailed
// purchase link fails naming the state rather than "not found".
func (m *Manager) CancelReservation(ctx context.Context, listID, productID string, who Requester) error {
	line, err := m.GetReservedLine(ctx, listID, productID, who.LineUserID())
	if err != nil {
		return err
	}
	product, err := m.GetProduct(ctx, listID, productID)
	if err != nil {
		return err
	}
	newReserved, err := NewReserved(*product, -line.Quantity)
	if err != nil {
		return err
	}

	lineDelete := &store.Condition{
		Expression: "#rid = :rid AND #quantity = :quantity",
		Names: map[string]string{
			"#rid":      "reservation_id",
			"#quantity": "quantity",
		},
		Values: map[string]types.AttributeValue{
			":rid":      &types.AttributeValueMemberS{Value: line.ReservationID},
			":quantity": numberAttr(line.Quantity),
		},
	}

	err = m.store.Transact(ctx,
		m.countersTx(product, newReserved, product.Purchased),
		m.store.TxDelete(line.Key(), lineDelete),
		m.store.TxUpdate(recordKey(line.ReservationID), stateTransition(StateReserved, StateCancelled)),
	)
	if err != nil {
		return mapCanceled(err, nil)
	}
	return nil
}

// ConfirmPurchase converts a reservation into a confirmed purchase. It is
// addressed by reservation id alone so the emailed link works without
// authentication. The claim moves from the reserved counter to the
// purchased counter, the line is deleted (the claim is no longer
// outstanding), and the record moves to purchased. A record already past
// reserved fails with a StateError naming its actual state.
func (m *Manager) ConfirmPurchase(ctx context.Context, reservationID string) (*ReservationRecord, error) {
	record, err := m.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if record.State != StateReserved {
		return nil, &StateError{Op: "purchase", State: record.State}
	}
	product, err := m.GetProduct(ctx, record.ListID, record.ProductID)
	if err != nil {
		return nil, err
	}
	newReserved, err := NewReserved(*product, -record.Quantity)
	if err != nil {
		return nil, err
	}
	newPurchased := product.Purchased + record.Quantity

	pk, sk := keys.ReservedLine(record.ListID, record.ProductID, record.UserID)
	lineDelete := &store.Condition{
		Expression: "#rid = :rid",
		Names:      map[string]string{"#rid": "reservation_id"},
		Values: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: reservationID},
		},
	}

	err = m.store.Transact(ctx,
		m.countersTx(product, newReserved, newPurchased),
		m.store.TxDelete(store.Key{PK: pk, SK: sk}, lineDelete),
		m.store.TxUpdate(record.Key(), stateTransition(StateReserved, StatePurchased)),
	)
	if err != nil {
		return nil, mapCanceled(err, nil)
	}

	record.State = StatePurchased
	return record, nil
}

// DeleteReservationRecord removes the global reservation record without
// touching the product counters or the reserved line. Deleting a record
// still in state reserved leaves Product.reserved permanently overstated,
// so that requires force; terminal-state rows delete freely.
func (m *Manager) DeleteReservationRecord(ctx context.Context, reservationID string, force bool) error {
	if !force {
		record, err := m.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if record.State == StateReserved {
			return &StateError{Op: "delete", State: record.State}
		}
	}
	if err := m.store.Delete(ctx, recordKey(reservationID), nil); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// --- List/product lifecycle (upstream CRUD support) ---

// CreateList stores a new list, failing if the id is taken.
func (m *Manager) CreateList(ctx context.Context, l List) error {
	l.PK, l.SK = keys.List(l.ListID)
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal list: %w", err)
	}
	err = m.store.Put(ctx, item, &store.Condition{Expression: "attribute_not_exists(pk)"})
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrConflict
	}
	return err
}

// AddProduct stores a new product under a list with zeroed counters.
func (m *Manager) AddProduct(ctx context.Context, p Product) error {
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Reserved = 0
	p.Purchased = 0
	p.Version = 1
	p.PK, p.SK = keys.Product(p.ListID, p.ProductID)
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	err = m.store.Put(ctx, item, &store.Condition{Expression: "attribute_not_exists(pk)"})
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrConflict
	}
	return err
}

// RemoveProduct deletes a product row. Outstanding reserved lines are
// cancelled asynchronously by the stream cleanup handler.
func (m *Manager) RemoveProduct(ctx context.Context, listID, productID string) error {
	pk, sk := keys.Product(listID, productID)
	err := m.store.Delete(ctx, store.Key{PK: pk, SK: sk}, &store.Condition{
		Expression: "attribute_exists(pk)",
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrProductNotFound
	}
	return err
}

// CancelOrphanedLine removes a reserved line whose product is gone and
// marks its record cancelled. Used by the stream cleanup handler; it does
// not touch product counters because the product row no longer exists.
func (m *Manager) CancelOrphanedLine(ctx context.Context, line ReservedLine) error {
	line.PK, line.SK = keys.ReservedLine(line.ListID, line.ProductID, line.UserID)
	err := m.store.Transact(ctx,
		m.store.TxDelete(line.Key(), &store.Condition{
			Expression: "#rid = :rid",
			Names:      map[string]string{"#rid": "reservation_id"},
			Values: map[string]types.AttributeValue{
				":rid": &types.AttributeValueMemberS{Value: line.ReservationID},
			},
		}),
		m.store.TxUpdate(recordKey(line.ReservationID), stateTransition(StateReserved, StateCancelled)),
	)
	if err != nil {
		return mapCanceled(err, nil)
	}
	return nil
}

// --- Transaction helpers ---

// countersTx builds the product counter update, conditioned on the version
// the counters were read at. A concurrent writer bumps the version, so the
// loser's precondition fails and the invariant never transiently breaks.
func (m *Manager) countersTx(p *Product, newReserved, newPurchased int) types.TransactWriteItem {
	return m.store.TxUpdate(p.Key(), store.Update{
		Expression: "SET #reserved = :reserved, #purchased = :purchased, #version = #version + :one",
		Condition:  "attribute_exists(pk) AND #version = :version",
		Names: map[string]string{
			"#reserved":  "reserved",
			"#purchased": "purchased",
			"#version":   "version",
		},
		Values: map[string]types.AttributeValue{
			":reserved":  numberAttr(newReserved),
			":purchased": numberAttr(newPurchased),
			":one":       &types.AttributeValueMemberN{Value: "1"},
			":version":   &types.AttributeValueMemberN{Value: strconv.FormatInt(p.Version, 10)},
		},
	})
}

// stateTransition builds the record update moving from one state to
// another, conditioned on the record still being in the source state.
func stateTransition(from, to State) store.Update {
	return store.Update{
		Expression: "SET #state = :to, #updated_at = :now",
		Condition:  "#state = :from",
		Names: map[string]string{
			"#state":      "state",
			"#updated_at": "updated_at",
		},
		Values: map[string]types.AttributeValue{
			":to":   stateAttr(to),
			":from": stateAttr(from),
			":now":  nowAttr(),
		},
	}
}

func recordKey(reservationID string) store.Key {
	pk, sk := keys.Reservation(reservationID)
	return store.Key{PK: pk, SK: sk}
}

func numberAttr(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func stateAttr(s State) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: string(s)}
}

func nowAttr() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}
}

// mapCanceled translates storage-level condition failures into the domain
// taxonomy. byIndex maps a transaction item index to the error its failed
// precondition means; any unmapped failure is a plain retryable conflict.
func mapCanceled(err error, byIndex map[int]error) error {
	var txErr *store.TransactionCanceledError
	if errors.As(err, &txErr) {
		failed := append([]int(nil), txErr.FailedIndexes...)
		sort.Ints(failed)
		for _, i := range failed {
			if mapped, ok := byIndex[i]; ok {
				return mapped
			}
		}
		return ErrConflict
	}
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrConflict
	}
	return err
}
