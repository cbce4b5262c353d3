package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/auth"
	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/service"
)

// ShowProfile renders a public profile with the user's posts.
func (a *API) ShowProfile(c *gin.Context) {
	user, err := a.users.GetByUsername(c.Param("username"))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	result, err := a.posts.List(service.PostFilter{UserID: user.ID, Page: parsePage(c)})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	a.renderHTML(c, http.StatusOK, "profile.html", gin.H{
		"title":      user.Username,
		"profile":    user,
		"isSelf":     a.actor(c).UserID == user.ID,
		"posts":      result.Posts,
		"page":       result.Page,
		"totalPages": result.TotalPages,
		"pageBase":   "/profile/" + user.Username + "?",
	})
}

// EditProfile renders the profile form for its owner.
func (a *API) EditProfile(c *gin.Context) {
	user, ok := a.ownedProfile(c)
	if !ok {
		return
	}
	a.renderProfileForm(c, http.StatusOK, user, profileFormFromUser(user), nil)
}

// UpdateProfile 保存资料修改，邮箱冲突或校验失败时回显表单。
func (a *API) UpdateProfile(c *gin.Context) {
	user, ok := a.ownedProfile(c)
	if !ok {
		return
	}

	var input service.ProfileInput
	if err := c.ShouldBind(&input); err != nil {
		a.renderProfileForm(c, http.StatusBadRequest, user, input, []string{"Invalid form submission."})
		return
	}

	if _, err := a.users.UpdateProfile(user.ID, input); err != nil {
		messages := formErrors(err)
		if messages == nil {
			a.handleServiceError(c, err)
			return
		}
		input.Password, input.Confirm = "", ""
		a.renderProfileForm(c, http.StatusBadRequest, user, input, messages)
		return
	}

	a.flash(c, flashSuccess, "Profile updated.")
	c.Redirect(http.StatusFound, "/profile/"+user.Username)
}

// DeleteAccount 删除当前用户及其文章、评论与附件，然后注销。
func (a *API) DeleteAccount(c *gin.Context) {
	actor := a.actor(c)
	if !actor.Authenticated() {
		a.deny(c, auth.Decision{Outcome: auth.AuthRequired})
		return
	}

	if err := a.users.DeleteAccount(actor.UserID); err != nil {
		a.handleServiceError(c, err)
		return
	}

	if err := auth.SignOut(sessions.Default(c)); err != nil {
		a.logger.Error().Err(err).Msg("failed to save session after account deletion")
	}
	a.flash(c, flashInfo, "Your account has been deleted.")
	c.Redirect(http.StatusFound, "/")
}

func (a *API) ownedProfile(c *gin.Context) (*db.User, bool) {
	user, err := a.users.GetByUsername(c.Param("username"))
	if err != nil {
		a.handleServiceError(c, err)
		return nil, false
	}

	decision := a.policy.AuthorizeMutate(a.actor(c), user.ID, "/profile/"+user.Username+"/edit")
	if !decision.Allowed() {
		a.deny(c, decision)
		return nil, false
	}
	return user, true
}

func (a *API) renderProfileForm(c *gin.Context, status int, user *db.User, input service.ProfileInput, messages []string) {
	a.renderHTML(c, status, "profile_edit.html", gin.H{
		"title":   "Edit profile",
		"profile": user,
		"form":    input,
		"errors":  messages,
	})
}

func profileFormFromUser(user *db.User) service.ProfileInput {
	input := service.ProfileInput{
		RealName: user.RealName,
		Email:    user.Email,
		Job:      user.Job,
		Bio:      user.Bio,
	}
	if user.Age != nil {
		input.Age = strconv.Itoa(*user.Age)
	}
	return input
}
