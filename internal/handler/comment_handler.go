package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/service"
)

// AddComment 需要登录；校验失败时通过 flash 回显并跳回文章页。
func (a *API) AddComment(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Post not found.")
		return
	}
	postURL := fmt.Sprintf("/post/%d", id)

	decision := a.policy.AuthorizeCreate(a.actor(c), postURL)
	if !decision.Allowed() {
		a.deny(c, decision)
		return
	}

	var input service.CommentInput
	if err := c.ShouldBind(&input); err != nil {
		a.flash(c, flashDanger, "Invalid comment.")
		c.Redirect(http.StatusFound, postURL)
		return
	}

	if _, err := a.comments.Create(id, a.actor(c).UserID, input); err != nil {
		messages := formErrors(err)
		if messages == nil {
			a.handleServiceError(c, err)
			return
		}
		a.flash(c, flashDanger, strings.Join(messages, " "))
		c.Redirect(http.StatusFound, postURL)
		return
	}

	a.flash(c, flashSuccess, "Comment added.")
	c.Redirect(http.StatusFound, postURL+"#comments")
}

// DeleteComment lets the author remove a comment.
func (a *API) DeleteComment(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Comment not found.")
		return
	}

	comment, err := a.comments.Get(id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	postURL := fmt.Sprintf("/post/%d", comment.PostID)
	decision := a.policy.AuthorizeMutate(a.actor(c), comment.UserID, postURL)
	if !decision.Allowed() {
		a.deny(c, decision)
		return
	}

	if err := a.comments.Delete(comment.ID); err != nil {
		a.handleServiceError(c, err)
		return
	}

	a.flash(c, flashSuccess, "Comment deleted.")
	c.Redirect(http.StatusFound, postURL+"#comments")
}
