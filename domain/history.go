package domain

// Action identifies the kind of inventory mutation recorded in the history log.
type Action string

const (
	ActionPrescribed Action = "PRESCRIBED"
	ActionRestocked  Action = "RESTOCKED"
	ActionConsumed   Action = "CONSUMED"
	// ActionDeleted is only written when deletion auditing is switched on.
	ActionDeleted Action = "DELETED"
)

// HistoryEntry is an append-only audit row. MedicineName is a snapshot, not a reference,
// so entries survive deletion of the medicine they describe.
type HistoryEntry struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"-"`
	Action       Action    `db:"action" json:"action"`
	MedicineName string    `db:"medicine_name" json:"medicine_name"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	Notes        string    `db:"notes" json:"notes"`
	CreatedAt    Timestamp `db:"created_date" json:"date"`
}
