package model

import (
	"time"
)

// Token is one issued credential. The row id is the stable credential id
// referenced by room_owners and by watcher heartbeats; the opaque string
// handed to clients is a signed JWT carrying this id.
type Token struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime:micro" json:"created_at"`
}

func (Token) TableName() string {
	return "tokens"
}
