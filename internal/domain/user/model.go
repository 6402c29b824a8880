package user

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the users table.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Mini is the compact projection returned by the directory endpoint,
// enough for staff to pick a patient when booking manually.
type Mini struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

func (u *User) Mini() Mini {
	return Mini{ID: u.ID, FullName: u.FullName, Email: u.Email}
}
