package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/auth"
	"github.com/noirblog/internal/service"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	users    *service.UserService
	posts    *service.PostService
	comments *service.CommentService
	topics   *service.TopicService
	files    *service.AttachmentStore
	policy   auth.Policy
	logger   zerolog.Logger
	siteName string
}

// Options tunes an API instance.
type Options struct {
	SiteName string
	Policy   auth.Policy
	Logger   zerolog.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, files *service.AttachmentStore, opts Options) *API {
	name := strings.TrimSpace(opts.SiteName)
	if name == "" {
		name = "Noir Blog"
	}
	policy := opts.Policy
	if policy.ReadLimit <= 0 {
		policy = auth.NewPolicy()
	}

	return &API{
		db:       gdb,
		users:    service.NewUserService(gdb, files, opts.Logger),
		posts:    service.NewPostService(gdb, files, opts.Logger),
		comments: service.NewCommentService(gdb),
		topics:   service.NewTopicService(gdb),
		files:    files,
		policy:   policy,
		logger:   opts.Logger,
		siteName: name,
	}
}

// Flash 分类与 Bootstrap 风格保持一致。
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashWarning = "warning"
	flashDanger  = "danger"
)

var flashCategories = []string{flashSuccess, flashInfo, flashWarning, flashDanger}

type flashMessage struct {
	Category string
	Message  string
}

func (a *API) flash(c *gin.Context, category, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, category)
	if err := session.Save(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to save flash message")
	}
}

func (a *API) popFlashes(c *gin.Context) []flashMessage {
	session := sessions.Default(c)
	var messages []flashMessage
	for _, category := range flashCategories {
		for _, raw := range session.Flashes(category) {
			if text, ok := raw.(string); ok {
				messages = append(messages, flashMessage{Category: category, Message: text})
			}
		}
	}
	if len(messages) > 0 {
		if err := session.Save(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to clear flash messages")
		}
	}
	return messages
}

func (a *API) sessionState(c *gin.Context) auth.SessionState {
	return auth.LoadState(sessions.Default(c))
}

func (a *API) actor(c *gin.Context) auth.Actor {
	return a.sessionState(c).Actor()
}

func (a *API) renderHTML(c *gin.Context, status int, template string, data gin.H) {
	actor := a.actor(c)

	payload := gin.H{
		"siteName":      a.siteName,
		"title":         "",
		"query":         "",
		"year":          time.Now().Year(),
		"currentUser":   actor.Username,
		"currentUserID": actor.UserID,
	}
	for key, value := range data {
		payload[key] = value
	}
	payload["flashes"] = a.popFlashes(c)

	c.HTML(status, template, payload)
}

func (a *API) renderError(c *gin.Context, status int, message string) {
	a.renderHTML(c, status, "error.html", gin.H{
		"title":   http.StatusText(status),
		"status":  status,
		"message": message,
	})
}

// deny 将策略拒绝转换为响应：配额用尽与未登录跳转登录页，越权返回 403。
func (a *API) deny(c *gin.Context, decision auth.Decision) {
	switch decision.Outcome {
	case auth.QuotaExceeded:
		a.flash(c, flashWarning, "You have read the free posts for this visit. Log in or register to keep reading.")
		c.Redirect(http.StatusFound, loginURL(decision.Next))
	case auth.AuthRequired:
		a.flash(c, flashInfo, "Please log in to continue.")
		c.Redirect(http.StatusFound, loginURL(decision.Next))
	default:
		a.renderError(c, http.StatusForbidden, "You are not allowed to change this.")
	}
	c.Abort()
}

func (a *API) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound):
		a.renderError(c, http.StatusNotFound, "Post not found.")
	case errors.Is(err, service.ErrUserNotFound):
		a.renderError(c, http.StatusNotFound, "User not found.")
	case errors.Is(err, service.ErrTopicNotFound):
		a.renderError(c, http.StatusNotFound, "Topic not found.")
	case errors.Is(err, service.ErrCommentNotFound):
		a.renderError(c, http.StatusNotFound, "Comment not found.")
	case errors.Is(err, service.ErrAttachmentNotFound):
		a.renderError(c, http.StatusNotFound, "Attachment not found.")
	default:
		a.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		a.renderError(c, http.StatusInternalServerError, "Something went wrong.")
	}
}

// formErrors 把服务层错误转换为表单上方展示的消息列表。
func formErrors(err error) []string {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Messages()
	case errors.Is(err, service.ErrUsernameTaken):
		return []string{"That username is already taken."}
	case errors.Is(err, service.ErrEmailTaken):
		return []string{"That email is already registered."}
	case errors.Is(err, service.ErrInvalidCredentials):
		return []string{"Invalid username/email or password."}
	case errors.Is(err, service.ErrAttachmentNotAllowed):
		return []string{"That file type is not allowed."}
	case errors.Is(err, service.ErrAttachmentWrite):
		return []string{"The attachment could not be saved. Please try again."}
	default:
		return nil
	}
}
