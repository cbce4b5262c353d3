package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noirblog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCommentNotFound = errors.New("comment not found")

// CommentInput is the comment form.
type CommentInput struct {
	Body string `form:"body" validate:"required,min=2,max=5000"`
}

// CommentService handles comments on posts.
type CommentService struct {
	db *gorm.DB
}

// NewCommentService creates a CommentService.
func NewCommentService(gdb *gorm.DB) *CommentService {
	return &CommentService{db: gdb}
}

// Create 为已存在的文章追加一条评论。
func (s *CommentService) Create(postID, userID uint, input CommentInput) (*db.Comment, error) {
	input.Body = strings.TrimSpace(input.Body)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, ErrUserNotFound
	}

	var count int64
	if err := s.db.Model(&db.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrPostNotFound
	}

	comment := db.Comment{Body: input.Body, UserID: userID, PostID: postID}
	if err := s.db.Omit(clause.Associations).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return &comment, nil
}

// Get fetches a single comment.
func (s *CommentService) Get(id uint) (*db.Comment, error) {
	var comment db.Comment
	if err := s.db.First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return &comment, nil
}

// ListForPost returns the comments of a post, oldest first.
func (s *CommentService) ListForPost(postID uint) ([]db.Comment, error) {
	var comments []db.Comment
	if err := s.db.
		Preload("User").
		Where("post_id = ?", postID).
		Order("created_at asc").
		Order("id asc").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// Delete removes a comment. Ownership is checked by the caller.
func (s *CommentService) Delete(id uint) error {
	result := s.db.Delete(&db.Comment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCommentNotFound
	}
	return nil
}
