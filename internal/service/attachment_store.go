package service

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrAttachmentNotAllowed = errors.New("attachment type not allowed")
	ErrAttachmentWrite      = errors.New("attachment could not be stored")
	ErrAttachmentNotFound   = errors.New("attachment not found")
)

// AllowedAttachmentExtensions 是允许上传的扩展名白名单。
var AllowedAttachmentExtensions = map[string]struct{}{
	"pdf": {}, "png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {}, "bmp": {},
	"txt": {}, "md": {}, "doc": {}, "docx": {}, "ppt": {}, "pptx": {},
	"xls": {}, "xlsx": {}, "csv": {}, "css": {}, "html": {}, "sh": {}, "js": {},
}

var imageExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {}, "bmp": {},
}

// Upload is a file received from a form.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// StoredAttachment describes a file written into the upload directory.
// Width and Height are zero unless the file decodes as an image.
type StoredAttachment struct {
	Filename string
	Width    int
	Height   int
}

// AttachmentStore keeps post attachments in a single flat directory.
type AttachmentStore struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewAttachmentStore creates a store rooted at dir.
func NewAttachmentStore(dir string, logger zerolog.Logger) *AttachmentStore {
	return &AttachmentStore{dir: dir, logger: logger, now: time.Now}
}

// Dir returns the upload directory.
func (s *AttachmentStore) Dir() string {
	return s.dir
}

// AllowedAttachment reports whether the filename carries an allow-listed extension.
func AllowedAttachment(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	_, ok := AllowedAttachmentExtensions[ext]
	return ok
}

// SanitizeFilename 只保留 ASCII 字母、数字、点、下划线与连字符，
// 去掉目录部分与开头的点，空白折叠为下划线。
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndex(name, "/")+1:]

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "._")
}

// Save validates and writes an upload. The stored name is
// "<UTC timestamp>_<short uuid>_<sanitized name>" so two uploads never collide.
func (s *AttachmentStore) Save(upload Upload) (*StoredAttachment, error) {
	clean := SanitizeFilename(upload.Filename)
	if clean == "" || !AllowedAttachment(clean) {
		return nil, ErrAttachmentNotAllowed
	}
	if upload.Reader == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrAttachmentWrite)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentWrite, err)
	}

	stored := fmt.Sprintf("%s_%s_%s",
		s.now().UTC().Format("20060102T150405"),
		uuid.New().String()[:8],
		clean,
	)
	path := filepath.Join(s.dir, stored)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentWrite, err)
	}
	if _, err := io.Copy(file, upload.Reader); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrAttachmentWrite, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrAttachmentWrite, err)
	}

	result := &StoredAttachment{Filename: stored}
	result.Width, result.Height = s.Probe(stored)
	return result, nil
}

// Replace 先写入新文件并调用 commit 持久化引用；commit 失败时删除新文件、保留旧文件，
// 成功后再尽力删除旧文件。
func (s *AttachmentStore) Replace(previous string, upload Upload, commit func(*StoredAttachment) error) (*StoredAttachment, error) {
	stored, err := s.Save(upload)
	if err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(stored); err != nil {
			s.Remove(stored.Filename)
			return nil, err
		}
	}
	if previous != "" && previous != stored.Filename {
		s.Remove(previous)
	}
	return stored, nil
}

// Remove deletes a stored file. Missing files are ignored and any other
// failure is logged, never returned.
func (s *AttachmentStore) Remove(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	path, err := s.Path(name)
	if err != nil {
		s.logger.Warn().Str("attachment", name).Err(err).Msg("refusing to remove attachment")
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Str("attachment", name).Err(err).Msg("failed to remove attachment")
	}
}

// Path resolves a stored name inside the upload directory.
func (s *AttachmentStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\") {
		return "", ErrAttachmentNotFound
	}
	return filepath.Join(s.dir, name), nil
}

// Open returns a reader for a stored attachment.
func (s *AttachmentStore) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}
	return file, nil
}

// Probe returns the pixel size of an image attachment, or zeros.
func (s *AttachmentStore) Probe(name string) (int, int) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if _, ok := imageExtensions[ext]; !ok {
		return 0, 0
	}

	file, err := s.Open(name)
	if err != nil {
		return 0, 0
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		s.logger.Debug().Str("attachment", name).Err(err).Msg("attachment is not a decodable image")
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// DisplayName strips the storage prefix for download headers.
func DisplayName(stored string) string {
	parts := strings.SplitN(stored, "_", 3)
	if len(parts) == 3 && len(parts[0]) == len("20060102T150405") && len(parts[1]) == 8 {
		return parts[2]
	}
	return stored
}
