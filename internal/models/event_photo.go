package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventPhoto struct {
	bun.BaseModel `bun:"table:event_photos,alias:ep"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64     `bun:"event_id,notnull" json:"event_id"`
	FileID    string    `bun:"file_id,notnull" json:"file_id"`
	Position  int       `bun:"position,notnull" json:"position"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
