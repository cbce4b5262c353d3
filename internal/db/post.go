package db

import (
	"path/filepath"
	"strings"
	"time"
)

// Post 定义了文章模型，正文为原始 Markdown。
type Post struct {
	ID                 uint   `gorm:"primaryKey"`
	Title              string `gorm:"size:250;not null"`
	Body               string `gorm:"type:text;not null"`
	UserID             uint   `gorm:"index;not null"`
	User               User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	TopicID            uint   `gorm:"index;not null"`
	Topic              Topic  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	AttachmentFilename string `gorm:"size:300"`
	AttachmentWidth    int
	AttachmentHeight   int
	Comments           []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
}

// HasAttachment reports whether a file is associated with the post.
func (p *Post) HasAttachment() bool {
	return strings.TrimSpace(p.AttachmentFilename) != ""
}

// AttachmentIsImage 仅在探测到尺寸时视为可内联展示的图片。
func (p *Post) AttachmentIsImage() bool {
	return p.HasAttachment() && p.AttachmentWidth > 0 && p.AttachmentHeight > 0
}

// AttachmentExt returns the lower-cased extension without the dot.
func (p *Post) AttachmentExt() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(p.AttachmentFilename)), ".")
}
