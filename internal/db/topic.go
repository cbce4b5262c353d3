package db

import "time"

// Topic 定义了话题分类，名称与 slug 均唯一。
type Topic struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:80;uniqueIndex;not null"`
	Slug      string `gorm:"size:80;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
