package router

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/auth"
	"github.com/noirblog/internal/config"
	"github.com/noirblog/internal/handler"
	"github.com/noirblog/internal/logging"
	"github.com/noirblog/internal/service"
	"github.com/noirblog/internal/view"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const sessionName = "noirblog_session"

// Options 汇总路由层需要的运行参数。
type Options struct {
	SessionSecret  string
	MaxUploadBytes int64
	SiteName       string
	Policy         auth.Policy
	Logger         zerolog.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(gdb *gorm.DB, files *service.AttachmentStore, opts Options) (*gin.Engine, error) {
	if gdb == nil {
		return nil, errors.New("database not initialized")
	}
	if files == nil {
		return nil, errors.New("attachment store not initialized")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadBytes
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(opts.Logger))

	// 配置会话中间件；不设置 MaxAge，浏览器关闭即结束会话
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(limitBody(opts.MaxUploadBytes))
	r.MaxMultipartMemory = opts.MaxUploadBytes

	tmpl, err := view.Templates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	api := handler.NewAPI(gdb, files, handler.Options{
		SiteName: opts.SiteName,
		Policy:   opts.Policy,
		Logger:   opts.Logger,
	})
	registerRoutes(r, api)
	return r, nil
}

func registerRoutes(r *gin.Engine, api *handler.API) {
	// 健康检查不读取会话
	r.GET("/healthz", api.HealthCheck)

	r.Use(api.VerifySession())

	// 列表页不受匿名阅读配额限制
	r.GET("/", api.Index)
	r.GET("/topics", api.Topics)
	r.GET("/topic/:id", api.TopicPosts)
	r.GET("/t/:slug", api.TopicBySlug)
	r.GET("/search", api.Search)

	r.GET("/register", api.ShowRegister)
	r.POST("/register", api.Register)
	r.GET("/login", api.ShowLogin)
	r.POST("/login", api.Login)
	r.GET("/logout", api.Logout)

	r.GET("/profile/:username", api.ShowProfile)
	r.GET("/profile/:username/edit", api.EditProfile)
	r.POST("/profile/:username/edit", api.UpdateProfile)
	r.POST("/account/delete", api.DeleteAccount)

	// 需要登录的创建路由
	authed := r.Group("")
	authed.Use(api.RequireLogin())
	{
		authed.GET("/post/new", api.NewPost)
		authed.POST("/post/new", api.CreatePost)
	}

	r.GET("/post/:id", api.ShowPost)
	r.GET("/post/:id/download", api.DownloadAttachment)
	r.GET("/post/:id/edit", api.EditPost)
	r.POST("/post/:id/edit", api.UpdatePost)
	r.POST("/post/:id/delete", api.DeletePost)
	r.POST("/post/:id/comment", api.AddComment)
	r.POST("/comment/:id/delete", api.DeleteComment)

	r.NoRoute(api.NotFound)
}

// limitBody 限制请求体大小，声明长度超限时直接返回 413。
func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
