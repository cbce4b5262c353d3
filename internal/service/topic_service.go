package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/noirblog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrTopicInvalid  = errors.New("topic name is required")
)

// TopicSeed 描述一个默认话题。Slug 为空时由名称推导。
type TopicSeed struct {
	Name string
	Slug string
}

// DefaultTopics 为启动时保证存在的话题目录。
var DefaultTopics = []TopicSeed{
	{Name: "General"},
	{Name: "Security"},
	{Name: "AI/ML"},
	{Name: "OSINT"},
	{Name: "Engineering"},
	{Name: "Ops & Intel"},
	{Name: "Signals"},
	{Name: "Cyber"},
	{Name: "Analysis"},
	{Name: "Tradecraft"},
	{Name: "History"},
	{Name: "Weapons"},
	{Name: "Policy"},
	{Name: "Field Notes"},
}

// TopicService wraps topic related operations.
type TopicService struct {
	db *gorm.DB
}

// TopicUsage pairs a topic with the number of posts filed under it.
type TopicUsage struct {
	db.Topic
	PostCount int64
}

// NewTopicService creates a TopicService instance.
func NewTopicService(gdb *gorm.DB) *TopicService {
	return &TopicService{db: gdb}
}

// List returns topics ordered by name.
func (s *TopicService) List() ([]db.Topic, error) {
	var topics []db.Topic
	if err := s.db.Order("name asc").Order("id asc").Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

// ListWithCounts returns topics with their post counts, ordered by name.
func (s *TopicService) ListWithCounts() ([]TopicUsage, error) {
	var rows []TopicUsage
	if err := s.db.Model(&db.Topic{}).
		Select("topics.*, COUNT(posts.id) AS post_count").
		Joins("LEFT JOIN posts ON posts.topic_id = topics.id").
		Group("topics.id").
		Order("topics.name asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Get fetches a topic by id.
func (s *TopicService) Get(id uint) (*db.Topic, error) {
	var topic db.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// GetBySlug fetches a topic by its slug.
func (s *TopicService) GetBySlug(slug string) (*db.Topic, error) {
	var topic db.Topic
	if err := s.db.Where("slug = ?", strings.TrimSpace(slug)).First(&topic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// Seed 幂等地补齐默认话题：已存在同名或同 slug 的话题时跳过，从不删除。
// 返回新插入的数量。
func (s *TopicService) Seed(seeds []TopicSeed) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, seed := range seeds {
			name := strings.TrimSpace(seed.Name)
			if name == "" {
				return ErrTopicInvalid
			}
			slug := strings.TrimSpace(seed.Slug)
			if slug == "" {
				slug = Slugify(name)
			}

			var count int64
			if err := tx.Model(&db.Topic{}).
				Where("name = ? OR slug = ?", name, slug).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check topic %q: %w", name, err)
			}
			if count > 0 {
				continue
			}

			result := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&db.Topic{Name: name, Slug: slug})
			if result.Error != nil {
				return fmt.Errorf("seed topic %q: %w", name, result.Error)
			}
			inserted += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Slugify lower-cases name and joins its alphanumeric runs with "-".
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
