package db

import "time"

// Comment 属于一篇文章与一位作者。
type Comment struct {
	ID        uint      `gorm:"primaryKey"`
	Body      string    `gorm:"type:text;not null"`
	UserID    uint      `gorm:"index;not null"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	PostID    uint      `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}
