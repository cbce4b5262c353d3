package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/auth"
	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/service"
	"github.com/noirblog/internal/view"
)

// Index 首页列表，不消耗匿名阅读配额。
func (a *API) Index(c *gin.Context) {
	result, err := a.posts.List(service.PostFilter{Page: parsePage(c)})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	a.renderHTML(c, http.StatusOK, "index.html", gin.H{
		"heading":        "Latest posts",
		"posts":          result.Posts,
		"page":           result.Page,
		"totalPages":     result.TotalPages,
		"pageBase":       "/?",
		"quotaRemaining": a.quotaRemaining(c),
	})
}

// ShowPost renders a full post. Anonymous visitors spend one unit of their
// session quota per view; once it is spent they are sent to the login page.
func (a *API) ShowPost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Post not found.")
		return
	}

	post, err := a.posts.Get(id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	session := sessions.Default(c)
	state := auth.LoadState(session)
	decision := a.policy.AuthorizeView(state.Actor(), &state, c.Request.URL.RequestURI())
	if !decision.Allowed() {
		a.logger.Debug().Uint("post_id", id).Int("anon_reads", state.AnonReads).Msg("anonymous read quota exhausted")
		a.deny(c, decision)
		return
	}
	if err := auth.SaveState(session, state); err != nil {
		a.logger.Warn().Err(err).Msg("failed to persist read counter")
	}

	comments, err := a.comments.ListForPost(post.ID)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	post.Comments = comments

	content, err := view.RenderMarkdown(post.Body)
	if err != nil {
		a.handleServiceError(c, fmt.Errorf("render post %d: %w", id, err))
		return
	}

	a.renderHTML(c, http.StatusOK, "post_detail.html", gin.H{
		"title":   post.Title,
		"post":    post,
		"content": content,
		"isOwner": state.UserID != 0 && state.UserID == post.UserID,
	})
}

// DownloadAttachment 返回文章附件；?inline=1 时用于详情页内嵌图片。
func (a *API) DownloadAttachment(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Post not found.")
		return
	}

	post, err := a.posts.Get(id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	if !post.HasAttachment() {
		a.renderError(c, http.StatusNotFound, "This post has no attachment.")
		return
	}

	path, err := a.files.Path(post.AttachmentFilename)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	file, err := a.files.Open(post.AttachmentFilename)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	_ = file.Close()

	if c.Query("inline") == "1" && post.AttachmentIsImage() {
		c.File(path)
		return
	}
	c.FileAttachment(path, service.DisplayName(post.AttachmentFilename))
}

// NewPost renders an empty post form.
func (a *API) NewPost(c *gin.Context) {
	a.renderPostForm(c, http.StatusOK, nil, service.PostInput{}, nil)
}

// CreatePost 保存新文章，附件被拒绝时整篇不保存。
func (a *API) CreatePost(c *gin.Context) {
	actor := a.actor(c)

	var input service.PostInput
	if err := c.ShouldBind(&input); err != nil {
		a.rejectInput(c, err, nil, input)
		return
	}
	input.UserID = actor.UserID

	upload, done, err := formUpload(c, "attachment")
	if err != nil {
		a.rejectInput(c, err, nil, input)
		return
	}
	defer done()

	post, err := a.posts.Create(input, upload)
	if err != nil {
		a.rejectForm(c, err, nil, input)
		return
	}

	a.logger.Info().Uint("post_id", post.ID).Uint("user_id", actor.UserID).Msg("post created")
	a.flash(c, flashSuccess, "Post published.")
	c.Redirect(http.StatusFound, fmt.Sprintf("/post/%d", post.ID))
}

// EditPost renders the edit form for the owner.
func (a *API) EditPost(c *gin.Context) {
	post, ok := a.ownedPost(c, "/edit")
	if !ok {
		return
	}
	a.renderPostForm(c, http.StatusOK, post, service.PostInput{
		Title:   post.Title,
		Body:    post.Body,
		TopicID: post.TopicID,
	}, nil)
}

// UpdatePost applies the owner's edits.
func (a *API) UpdatePost(c *gin.Context) {
	post, ok := a.ownedPost(c, "/edit")
	if !ok {
		return
	}

	var input service.PostInput
	if err := c.ShouldBind(&input); err != nil {
		a.rejectInput(c, err, post, input)
		return
	}
	input.UserID = post.UserID

	upload, done, err := formUpload(c, "attachment")
	if err != nil {
		a.rejectInput(c, err, post, input)
		return
	}
	defer done()

	updated, err := a.posts.Update(post.ID, input, upload)
	if err != nil {
		a.rejectForm(c, err, post, input)
		return
	}

	a.flash(c, flashSuccess, "Post updated.")
	c.Redirect(http.StatusFound, fmt.Sprintf("/post/%d", updated.ID))
}

// DeletePost removes the post, its comments and its attachment.
func (a *API) DeletePost(c *gin.Context) {
	post, ok := a.ownedPost(c, "")
	if !ok {
		return
	}

	if err := a.posts.Delete(post.ID); err != nil {
		a.handleServiceError(c, err)
		return
	}

	a.flash(c, flashSuccess, "Post deleted.")
	c.Redirect(http.StatusFound, "/")
}

// ownedPost 加载文章并校验当前用户是否为作者；失败时已写出响应。
// suffix 附加在 /post/:id 之后，作为未登录时登录后的返回地址。
func (a *API) ownedPost(c *gin.Context, suffix string) (*db.Post, bool) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Post not found.")
		return nil, false
	}

	post, err := a.posts.Get(id)
	if err != nil {
		a.handleServiceError(c, err)
		return nil, false
	}

	target := fmt.Sprintf("/post/%d%s", post.ID, suffix)
	decision := a.policy.AuthorizeMutate(a.actor(c), post.UserID, target)
	if !decision.Allowed() {
		a.deny(c, decision)
		return nil, false
	}
	return post, true
}

// rejectInput 处理表单解析阶段的错误（字段格式不对或请求体超限）。
func (a *API) rejectInput(c *gin.Context, err error, post *db.Post, input service.PostInput) {
	if isBodyTooLarge(err) {
		a.renderError(c, http.StatusRequestEntityTooLarge, "The upload is too large.")
		return
	}
	a.renderPostForm(c, http.StatusBadRequest, post, input, []string{"Invalid form submission."})
}

// rejectForm 把服务层的校验与附件错误回显在表单上，其余错误按类型响应。
func (a *API) rejectForm(c *gin.Context, err error, post *db.Post, input service.PostInput) {
	messages := formErrors(err)
	if messages == nil {
		a.handleServiceError(c, err)
		return
	}
	a.renderPostForm(c, http.StatusBadRequest, post, input, messages)
}

func (a *API) renderPostForm(c *gin.Context, status int, post *db.Post, input service.PostInput, messages []string) {
	topics, err := a.topics.List()
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	title := "New post"
	if post != nil {
		title = "Edit post"
	}

	a.renderHTML(c, status, "post_form.html", gin.H{
		"title":             title,
		"post":              post,
		"form":              input,
		"topics":            topics,
		"errors":            messages,
		"allowedExtensions": allowedExtensionList(),
	})
}

func (a *API) quotaRemaining(c *gin.Context) int {
	state := a.sessionState(c)
	if state.Actor().Authenticated() {
		return 0
	}
	return a.policy.Remaining(state)
}

func allowedExtensionList() string {
	exts := make([]string, 0, len(service.AllowedAttachmentExtensions))
	for ext := range service.AllowedAttachmentExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}
