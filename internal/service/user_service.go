package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noirblog/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RegisterInput 描述注册表单。
type RegisterInput struct {
	Username string `form:"username" validate:"required,min=3,max=64"`
	Email    string `form:"email" validate:"required,email,max=200"`
	Password string `form:"password" validate:"required,min=6"`
	Confirm  string `form:"confirm" validate:"required,eqfield=Password"`
	RealName string `form:"realname" validate:"max=120"`
	Age      string `form:"age" validate:"omitempty,numeric"`
	Job      string `form:"job" validate:"max=150"`
	Bio      string `form:"bio" validate:"max=5000"`
}

// ProfileInput 描述资料编辑表单；Password 为空表示不修改密码。
type ProfileInput struct {
	RealName string `form:"realname" validate:"max=120"`
	Email    string `form:"email" validate:"required,email,max=200"`
	Age      string `form:"age" validate:"omitempty,numeric"`
	Job      string `form:"job" validate:"max=150"`
	Bio      string `form:"bio" validate:"max=5000"`
	Password string `form:"password" validate:"omitempty,min=6"`
	Confirm  string `form:"confirm" validate:"eqfield=Password"`
}

// UserService wraps account related operations.
type UserService struct {
	db     *gorm.DB
	files  *AttachmentStore
	logger zerolog.Logger
}

// NewUserService creates a UserService. files may be nil when attachments
// are not managed, e.g. from the CLI.
func NewUserService(gdb *gorm.DB, files *AttachmentStore, logger zerolog.Logger) *UserService {
	return &UserService{db: gdb, files: files, logger: logger}
}

// Register validates the form, enforces unique username and email, and
// stores a bcrypt digest of the password.
func (s *UserService) Register(input RegisterInput) (*db.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.RealName = strings.TrimSpace(input.RealName)
	input.Age = strings.TrimSpace(input.Age)
	input.Job = strings.TrimSpace(input.Job)
	input.Bio = strings.TrimSpace(input.Bio)

	if err := validateStruct(input); err != nil {
		return nil, err
	}
	age, err := parseAge(input.Age)
	if err != nil {
		return nil, err
	}

	if taken, err := s.exists("username = ?", input.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := s.exists("email = ?", input.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hashed, err := db.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := db.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashed,
		RealName:     input.RealName,
		Age:          age,
		Job:          input.Job,
		Bio:          input.Bio,
	}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, s.duplicateCause(input.Username, input.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Authenticate 按用户名或邮箱查找账号并校验密码。
func (s *UserService) Authenticate(credential, password string) (*db.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user db.User
	if err := s.db.
		Where("username = ? OR email = ?", credential, strings.ToLower(credential)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get fetches a user by id.
func (s *UserService) Get(id uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername fetches a user by handle.
func (s *UserService) GetByUsername(username string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies profile edits. The email stays unique across users.
func (s *UserService) UpdateProfile(id uint, input ProfileInput) (*db.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.RealName = strings.TrimSpace(input.RealName)
	input.Age = strings.TrimSpace(input.Age)
	input.Job = strings.TrimSpace(input.Job)
	input.Bio = strings.TrimSpace(input.Bio)

	if err := validateStruct(input); err != nil {
		return nil, err
	}
	age, err := parseAge(input.Age)
	if err != nil {
		return nil, err
	}

	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if taken, err := s.exists("email = ? AND id <> ?", input.Email, id); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	updates := map[string]interface{}{
		"real_name": input.RealName,
		"email":     input.Email,
		"age":       age,
		"job":       input.Job,
		"bio":       input.Bio,
	}
	if input.Password != "" {
		hashed, err := db.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = hashed
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return s.Get(id)
}

// DeleteAccount 以显式顺序删除账号：先删该用户发表的评论、再删其文章下的评论、
// 然后删除文章与用户本身，全部在一个事务内完成。事务提交后尽力清理附件文件。
func (s *UserService) DeleteAccount(id uint) error {
	var attachments []string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user db.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var posts []db.Post
		if err := tx.Select("id", "attachment_filename").Where("user_id = ?", id).Find(&posts).Error; err != nil {
			return fmt.Errorf("load posts: %w", err)
		}
		postIDs := make([]uint, 0, len(posts))
		for _, post := range posts {
			postIDs = append(postIDs, post.ID)
			if post.HasAttachment() {
				attachments = append(attachments, post.AttachmentFilename)
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&db.Comment{}).Error; err != nil {
			return fmt.Errorf("delete authored comments: %w", err)
		}
		if len(postIDs) > 0 {
			if err := tx.Where("post_id IN ?", postIDs).Delete(&db.Comment{}).Error; err != nil {
				return fmt.Errorf("delete comments on posts: %w", err)
			}
			if err := tx.Where("id IN ?", postIDs).Delete(&db.Post{}).Error; err != nil {
				return fmt.Errorf("delete posts: %w", err)
			}
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.files != nil {
		for _, name := range attachments {
			s.files.Remove(name)
		}
	}

	s.logger.Info().
		Uint("user_id", id).
		Int("attachments", len(attachments)).
		Msg("account deleted")
	return nil
}

func (s *UserService) exists(query string, args ...interface{}) (bool, error) {
	var count int64
	if err := s.db.Model(&db.User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// duplicateCause 在唯一索引冲突后判断是哪个字段重复。
func (s *UserService) duplicateCause(username, email string) error {
	if taken, err := s.exists("username = ?", username); err == nil && taken {
		return ErrUsernameTaken
	}
	if taken, err := s.exists("email = ?", email); err == nil && taken {
		return ErrEmailTaken
	}
	return fmt.Errorf("create user: %w", gorm.ErrDuplicatedKey)
}

func parseAge(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	age, err := strconv.Atoi(raw)
	if err != nil || age < 0 || age > 150 {
		return nil, fieldError("age", "must be between 0 and 150")
	}
	return &age, nil
}
