package domain

// Medicine is a stock record owned by exactly one user. Quantity never goes below zero.
type Medicine struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	Dosage    string    `db:"dosage" json:"dosage"`
	Frequency string    `db:"frequency" json:"frequency"`
	Notes     string    `db:"notes" json:"notes"`
	AddedAt   Timestamp `db:"added_date" json:"added_date"`
	UpdatedAt Timestamp `db:"updated_date" json:"updated_date"`
}
