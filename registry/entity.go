package registry

import (
	"strings"

	"github.com/jacentio/giftlist/internal/keys"
	"github.com/jacentio/giftlist/store"
)

// State is the lifecycle state of a reservation record.
type State string

const (
	StateReserved  State = "reserved"
	StatePurchased State = "purchased"
	StateCancelled State = "cancelled"
)

// List is the registry a product belongs to. The core only reads it for
// existence and ownership checks; list CRUD lives upstream.
type List struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	ListID  string `dynamodbav:"list_id"`
	OwnerID string `dynamodbav:"owner_id"`
	Title   string `dynamodbav:"title"`
}

// Key returns the list's storage key.
func (l List) Key() store.Key {
	pk, sk := keys.List(l.ListID)
	return store.Key{PK: pk, SK: sk}
}

// Product is a list item with its aggregate reservation counters.
// Version is the optimistic-concurrency token: every counter change is
// conditioned on the version the counters were read at.
type Product struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	ListID    string `dynamodbav:"list_id"`
	ProductID string `dynamodbav:"product_id"`
	Title     string `dynamodbav:"title"`
	Link      string `dynamodbav:"link,omitempty"`
	Quantity  int    `dynamodbav:"quantity"`
	Reserved  int    `dynamodbav:"reserved"`
	Purchased int    `dynamodbav:"purchased"`
	Version   int64  `dynamodbav:"version"`
}

// Key returns the product's storage key.
func (p Product) Key() store.Key {
	pk, sk := keys.Product(p.ListID, p.ProductID)
	return store.Key{PK: pk, SK: sk}
}

// Available returns how many units can still be claimed.
func (p Product) Available() int {
	return p.Quantity - p.Reserved - p.Purchased
}

// ReservedLine is one user's outstanding claim on a product, co-located in
// the list partition for display queries. Its quantity is always the share
// it contributes to the product's reserved counter.
type ReservedLine struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	ListID        string `dynamodbav:"list_id"`
	ProductID     string `dynamodbav:"product_id"`
	UserID        string `dynamodbav:"user_id"`
	Quantity      int    `dynamodbav:"quantity"`
	ReservationID string `dynamodbav:"reservation_id"`
	Name          string `dynamodbav:"name,omitempty"`
	Email         string `dynamodbav:"email,omitempty"`
}

// Key returns the line's storage key.
func (r ReservedLine) Key() store.Key {
	pk, sk := keys.ReservedLine(r.ListID, r.ProductID, r.UserID)
	return store.Key{PK: pk, SK: sk}
}

// ReservationRecord is the durable state-machine record for one
// reservation. It lives in its own partition, addressed only by the
// generated reservation id, so an emailed purchase link can resolve it
// without authentication. It must never disagree with the ReservedLine.
type ReservationRecord struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	ReservationID string `dynamodbav:"reservation_id"`
	ListID        string `dynamodbav:"list_id"`
	ProductID     string `dynamodbav:"product_id"`
	UserID        string `dynamodbav:"user_id"`
	Email         string `dynamodbav:"email,omitempty"`
	Quantity      int    `dynamodbav:"quantity"`
	State         State  `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

// Key returns the record's storage key.
func (r ReservationRecord) Key() store.Key {
	pk, sk := keys.Reservation(r.ReservationID)
	return store.Key{PK: pk, SK: sk}
}

// User is an account row, addressed by email. The core only checks it for
// existence so a guest reservation cannot shadow an account holder.
type User struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	UserID string `dynamodbav:"user_id"`
	Email  string `dynamodbav:"email"`
	Name   string `dynamodbav:"name,omitempty"`
}

// Requester is the resolved caller identity. ID is empty for guests, who
// are identified by email instead.
type Requester struct {
	ID    string
	Name  string
	Email string
}

// LineUserID returns the identifier used in reserved line keys: the account
// id when present, otherwise the normalized email.
func (r Requester) LineUserID() string {
	if r.ID != "" {
		return r.ID
	}
	return strings.ToLower(r.Email)
}
