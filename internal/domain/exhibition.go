package domain

import "time"

// Exhibition is the capacity-limited event tickets are issued against.
type Exhibition struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Capacity      int       `json:"capacity"`
	ReservedUnits int       `json:"reserved_units"`
	Active        bool      `json:"active"`
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Remaining is informational only; reservations go through the ledger.
func (e *Exhibition) Remaining() int {
	return e.Capacity - e.ReservedUnits
}

// OpenForRegistration reports whether new registrations may be accepted.
func (e *Exhibition) OpenForRegistration() bool {
	return e.Active && e.Published
}

// ClosedAt reports whether entry is no longer possible at t.
func (e *Exhibition) ClosedAt(t time.Time) bool {
	if !e.Active {
		return true
	}
	return !e.EndsAt.IsZero() && t.After(e.EndsAt)
}

// Registrant is the identity a registration belongs to.
type Registrant struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    int64
	Admin bool
}

func (a Actor) CanManage(r *Registration) bool {
	return a.Admin || a.ID == r.RegistrantID
}
