package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noirblog/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPostNotFound = errors.New("post not found")

var errNoUploadDir = fmt.Errorf("%w: no upload directory configured", ErrAttachmentWrite)

const defaultPostsPerPage = 10

// PostService wraps post related database operations.
type PostService struct {
	db     *gorm.DB
	files  *AttachmentStore
	logger zerolog.Logger
}

// PostFilter describes filters for listing posts.
type PostFilter struct {
	Query   string
	TopicID uint
	UserID  uint
	Page    int
	PerPage int
}

// PostListResult aggregates paginated list data.
type PostListResult struct {
	Posts      []db.Post
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// PostInput represents fields accepted when creating or updating a post.
type PostInput struct {
	Title            string `form:"title" validate:"required,max=160"`
	Body             string `form:"body" validate:"required,min=10"`
	TopicID          uint   `form:"topic_id" validate:"required"`
	RemoveAttachment bool   `form:"remove_attachment"`
	UserID           uint   `form:"-"`
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB, files *AttachmentStore, logger zerolog.Logger) *PostService {
	return &PostService{db: gdb, files: files, logger: logger}
}

// List returns posts newest first, optionally filtered by text, topic or author.
func (s *PostService) List(filter PostFilter) (*PostListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultPostsPerPage
	}

	var total int64
	if err := applyPostFilters(s.db.Model(&db.Post{}), filter).Count(&total).Error; err != nil {
		return nil, err
	}

	var posts []db.Post
	if err := applyPostFilters(s.db.Model(&db.Post{}), filter).
		Preload("User").
		Preload("Topic").
		Order("created_at desc").
		Order("id desc").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	if totalPages == 0 {
		totalPages = 1
	}

	return &PostListResult{
		Posts:      posts,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// Recent returns the newest posts for the home page.
func (s *PostService) Recent(limit int) ([]db.Post, error) {
	if limit <= 0 {
		limit = defaultPostsPerPage
	}
	var posts []db.Post
	if err := s.db.
		Preload("User").
		Preload("Topic").
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Search 按标题做不区分大小写的子串匹配，空查询返回空结果。
func (s *PostService) Search(q string) ([]db.Post, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []db.Post{}, nil
	}
	var posts []db.Post
	if err := s.db.
		Preload("User").
		Preload("Topic").
		Where("LOWER(title) LIKE ?", "%"+q+"%").
		Order("created_at desc").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Get fetches a post with its author and topic.
func (s *PostService) Get(id uint) (*db.Post, error) {
	var post db.Post
	if err := s.db.
		Preload("User").
		Preload("Topic").
		First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// Create validates the input, stores the optional attachment and persists the post.
// A rejected attachment aborts the whole operation.
func (s *PostService) Create(input PostInput, upload *Upload) (*db.Post, error) {
	input = normalizePostInput(input)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if input.UserID == 0 {
		return nil, ErrUserNotFound
	}
	if err := s.ensureTopic(input.TopicID); err != nil {
		return nil, err
	}

	post := db.Post{
		Title:   input.Title,
		Body:    input.Body,
		UserID:  input.UserID,
		TopicID: input.TopicID,
	}

	var stored *StoredAttachment
	if hasUpload(upload) {
		var err error
		if stored, err = s.saveUpload(*upload); err != nil {
			return nil, err
		}
		applyAttachment(&post, stored)
	}

	if err := s.db.Omit(clause.Associations).Create(&post).Error; err != nil {
		if stored != nil {
			s.files.Remove(stored.Filename)
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	return s.Get(post.ID)
}

// Update applies edits to an existing post. A new upload replaces the previous
// file; the old file is removed only after the row is saved.
func (s *PostService) Update(id uint, input PostInput, upload *Upload) (*db.Post, error) {
	input = normalizePostInput(input)
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	var post db.Post
	if err := s.db.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if err := s.ensureTopic(input.TopicID); err != nil {
		return nil, err
	}

	previous := post.AttachmentFilename
	post.Title = input.Title
	post.Body = input.Body
	post.TopicID = input.TopicID

	save := func() error {
		if err := s.db.Omit(clause.Associations).Save(&post).Error; err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		return nil
	}

	switch {
	case hasUpload(upload):
		if s.files == nil {
			return nil, errNoUploadDir
		}
		if _, err := s.files.Replace(previous, *upload, func(stored *StoredAttachment) error {
			applyAttachment(&post, stored)
			return save()
		}); err != nil {
			return nil, err
		}
	case input.RemoveAttachment:
		applyAttachment(&post, nil)
		if err := save(); err != nil {
			return nil, err
		}
		if previous != "" && s.files != nil {
			s.files.Remove(previous)
		}
	default:
		if err := save(); err != nil {
			return nil, err
		}
	}

	return s.Get(post.ID)
}

// Delete 在事务中先删除评论再删除文章，提交后尽力删除附件文件。
func (s *PostService) Delete(id uint) error {
	var attachment string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var post db.Post
		if err := tx.First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}
		attachment = post.AttachmentFilename

		if err := tx.Where("post_id = ?", post.ID).Delete(&db.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Delete(&post).Error; err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if attachment != "" && s.files != nil {
		s.files.Remove(attachment)
	}
	s.logger.Info().Uint("post_id", id).Msg("post deleted")
	return nil
}

func applyPostFilters(query *gorm.DB, filter PostFilter) *gorm.DB {
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", like, like)
	}
	if filter.TopicID != 0 {
		query = query.Where("topic_id = ?", filter.TopicID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	return query
}

func (s *PostService) ensureTopic(id uint) error {
	var count int64
	if err := s.db.Model(&db.Topic{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fieldError("topic_id", "is not a known topic")
	}
	return nil
}

func normalizePostInput(input PostInput) PostInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Body = strings.TrimSpace(input.Body)
	return input
}

func (s *PostService) saveUpload(upload Upload) (*StoredAttachment, error) {
	if s.files == nil {
		return nil, errNoUploadDir
	}
	return s.files.Save(upload)
}

func hasUpload(upload *Upload) bool {
	return upload != nil && strings.TrimSpace(upload.Filename) != ""
}

func applyAttachment(post *db.Post, stored *StoredAttachment) {
	if stored == nil {
		post.AttachmentFilename = ""
		post.AttachmentWidth = 0
		post.AttachmentHeight = 0
		return
	}
	post.AttachmentFilename = stored.Filename
	post.AttachmentWidth = stored.Width
	post.AttachmentHeight = stored.Height
}
