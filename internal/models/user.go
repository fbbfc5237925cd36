package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RoleResident  = "resident"
	RoleOrganizer = "organizer"
)

// User is keyed by the Telegram user id. Role is informational only.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk" json:"id"`
	Role      string    `bun:"role,notnull,default:'resident'" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
