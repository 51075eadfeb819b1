// README: Market rows: requests (demand), courier offers (supply), drivers
// and assignments (clearing results).
package market

import (
	"time"

	"github.com/google/uuid"

	"biddrop/internal/types"
)

// Statuses cover what clearing reads and writes; later lifecycle stages
// (pickup, transit, completion) live in the delivery tracking surface, not
// here.
type RequestStatus string

const (
	RequestOpen     RequestStatus = "open"
	RequestAssigned RequestStatus = "assigned"
)

type OfferStatus string

const (
	OfferActive   OfferStatus = "active"
	OfferAssigned OfferStatus = "assigned"
)

type AssignmentStatus string

const AssignmentCreated AssignmentStatus = "created"

// Request is one open demand row: somebody wants a person or package moved.
type Request struct {
	ID          uuid.UUID
	OwnerUserID uuid.UUID
	Kind        string // passenger | package | ride (legacy alias)
	FromAddress string
	From        *types.Point // nil when not geocoded yet
	ToAddress   string
	To          *types.Point
	Passengers  int
	MaxPrice    float64 // 0 means uncapped
	WindowStart *time.Time
	WindowEnd   *time.Time
	Status      RequestStatus

	// PushDeferUntil suppresses match notifications until it passes; the
	// waiting screen shows the match live in the meantime.
	PushDeferUntil *time.Time

	CreatedAt time.Time
}

// Offer is one supply row: a driver's declared window, floor price and the
// request kinds they will take.
type Offer struct {
	ID           uuid.UUID
	DriverUserID uuid.UUID
	MinPrice     float64
	Kinds        []string
	WindowStart  *time.Time
	WindowEnd    *time.Time
	From         *types.Point
	To           *types.Point
	Status       OfferStatus
	CreatedAt    time.Time
}

// Driver is the slice of a user row the clearing engine needs.
type Driver struct {
	ID            uuid.UUID
	Rating        float64
	ExpoPushToken string

	// PushDeferUntil is the latest defer timestamp across the driver's
	// active offers.
	PushDeferUntil *time.Time
}

// Assignment is one clearing result row linking a request to its driver.
type Assignment struct {
	ID           uuid.UUID
	RequestID    uuid.UUID
	DriverUserID uuid.UUID
	Status       AssignmentStatus
	AgreedPrice  types.Money
	AssignedAt   time.Time
}

// HasCoordinates reports whether the request carries both endpoints; rows
// without coordinates cannot enter a clearing cycle.
func (r *Request) HasCoordinates() bool {
	return r.From != nil && r.To != nil
}
