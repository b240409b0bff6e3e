package domain

// Reservation status constants.
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusExpired   = "expired"
)

// Reservation quantity bounds enforced on every hold.
const (
	MinReservationQty = 1
	MaxReservationQty = 5
)

// Reservation represents a temporary hold of stock for a user.
// Timestamps are unix milliseconds.
type Reservation struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ItemID    string `json:"itemId"`
	Qty       int    `json:"qty"`
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expiresAt"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// IsTerminal returns true once the reservation has reached a state it can
// never leave (confirmed, cancelled or expired).
func (r *Reservation) IsTerminal() bool {
	return r.Status != ReservationStatusReserved
}

// IsExpiredAt returns true if an active hold has outlived its deadline at
// the given instant (unix milliseconds). Terminal reservations never expire.
func (r *Reservation) IsExpiredAt(nowMs int64) bool {
	return r.Status == ReservationStatusReserved && nowMs > r.ExpiresAt
}

// CanTransitionTo reports whether the reservation may move to the target
// status. Only active holds transition; terminal states absorb.
func (r *Reservation) CanTransitionTo(status string) bool {
	if r.Status != ReservationStatusReserved {
		return false
	}
	switch status {
	case ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	}
	return false
}

// IsValidQty checks whether qty is inside the allowed per-reservation bounds.
func IsValidQty(qty int) bool {
	return qty >= MinReservationQty && qty <= MaxReservationQty
}

// ValidReservationStatuses returns the set of valid reservation statuses.
func ValidReservationStatuses() []string {
	return []string{ReservationStatusReserved, ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusExpired}
}

// IsValidReservationStatus checks whether the given status is a valid reservation status.
func IsValidReservationStatus(status string) bool {
	for _, s := range ValidReservationStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
