package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/auth"
	"github.com/noirblog/internal/service"
)

// VerifySession 确认会话中的用户仍然存在；账号已被删除时清除登录身份，
// 后续处理按匿名访客对待，阅读计数保留。
func (a *API) VerifySession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		state := auth.LoadState(session)
		if state.UserID == 0 {
			c.Next()
			return
		}

		if _, err := a.users.Get(state.UserID); err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				if err := auth.SignOut(session); err != nil {
					a.logger.Warn().Err(err).Msg("failed to clear stale session")
				}
				a.logger.Info().Uint("user_id", state.UserID).Msg("session user no longer exists")
			} else {
				a.logger.Warn().Err(err).Uint("user_id", state.UserID).Msg("failed to verify session user")
			}
		}
		c.Next()
	}
}

// RequireLogin 拦截匿名请求并带上 next 跳转到登录页。
// 表单提交（POST /post/new）以同一路径作为返回地址，登录后回到表单页。
func (a *API) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Request.URL.RequestURI()
		if c.Request.Method != http.MethodGet {
			target = c.Request.URL.Path
		}

		decision := a.policy.AuthorizeCreate(a.actor(c), target)
		if !decision.Allowed() {
			a.deny(c, decision)
			return
		}
		c.Next()
	}
}

// ShowRegister renders the sign-up form.
func (a *API) ShowRegister(c *gin.Context) {
	if a.actor(c).Authenticated() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	a.renderHTML(c, http.StatusOK, "register.html", gin.H{
		"title": "Register",
		"form":  service.RegisterInput{},
		"next":  auth.SafeNext(c.Query("next")),
	})
}

// Register 创建账号后直接登录，并跳回 next 或首页。
func (a *API) Register(c *gin.Context) {
	if a.actor(c).Authenticated() {
		c.Redirect(http.StatusFound, "/")
		return
	}

	var input service.RegisterInput
	if err := c.ShouldBind(&input); err != nil {
		a.renderError(c, http.StatusBadRequest, "Invalid form submission.")
		return
	}
	next := auth.SafeNext(c.PostForm("next"))

	user, err := a.users.Register(input)
	if err != nil {
		messages := formErrors(err)
		if messages == nil {
			a.handleServiceError(c, err)
			return
		}
		input.Password, input.Confirm = "", ""
		a.renderHTML(c, http.StatusBadRequest, "register.html", gin.H{
			"title":  "Register",
			"form":   input,
			"errors": messages,
			"next":   next,
		})
		return
	}

	if err := auth.SignIn(sessions.Default(c), user.ID, user.Username); err != nil {
		a.logger.Error().Err(err).Msg("failed to save session after register")
	}
	a.logger.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	a.flash(c, flashSuccess, "Welcome, "+user.Username+"! Your account is ready.")
	c.Redirect(http.StatusFound, redirectTarget(next))
}

// ShowLogin renders the sign-in form.
func (a *API) ShowLogin(c *gin.Context) {
	if a.actor(c).Authenticated() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	a.renderHTML(c, http.StatusOK, "login.html", gin.H{
		"title": "Log in",
		"next":  auth.SafeNext(c.Query("next")),
	})
}

// Login 接受用户名或邮箱登录，成功后只会跳转到站内路径。
func (a *API) Login(c *gin.Context) {
	if a.actor(c).Authenticated() {
		c.Redirect(http.StatusFound, "/")
		return
	}

	credential := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	next := auth.SafeNext(c.PostForm("next"))
	if next == "" {
		next = auth.SafeNext(c.Query("next"))
	}

	user, err := a.users.Authenticate(credential, password)
	if err != nil {
		messages := formErrors(err)
		if messages == nil {
			a.handleServiceError(c, err)
			return
		}
		a.renderHTML(c, http.StatusUnauthorized, "login.html", gin.H{
			"title":      "Log in",
			"credential": credential,
			"errors":     messages,
			"next":       next,
		})
		return
	}

	if err := auth.SignIn(sessions.Default(c), user.ID, user.Username); err != nil {
		a.logger.Error().Err(err).Msg("failed to save session after login")
	}
	a.flash(c, flashSuccess, "Logged in as "+user.Username+".")
	c.Redirect(http.StatusFound, redirectTarget(next))
}

// Logout 清除登录身份，匿名阅读计数保留在会话中。
func (a *API) Logout(c *gin.Context) {
	if err := auth.SignOut(sessions.Default(c)); err != nil {
		a.logger.Error().Err(err).Msg("failed to save session after logout")
	}
	a.flash(c, flashInfo, "You have been logged out.")
	c.Redirect(http.StatusFound, "/")
}

func redirectTarget(next string) string {
	if next == "" {
		return "/"
	}
	return next
}
