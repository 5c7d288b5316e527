package http

import (
	"net/http"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/dmitrijs2005/profilekeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// sessionData is returned by login so clients without cookies can keep the
// tokens.
type sessionData struct {
	User         *models.AccountView `json:"user"`
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken"`
}

var errBadBody = common.Validation("invalid request body")

func (s *HTTPServer) register(c *gin.Context) {
	ctx := c.Request.Context()

	files, err := s.stageAll(c, "avatar", "coverImage")
	if err != nil {
		s.fail(c, err)
		return
	}

	view, err := s.accounts.Register(ctx, services.RegisterInput{
		Username: c.PostForm("username"),
		FullName: c.PostForm("fullName"),
		Email:    c.PostForm("email"),
		Password: c.PostForm("password"),
		Avatar:   files[0],
		Cover:    files[1],
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Info(ctx, "Registered", "account_id", view.ID)
	respond(c, http.StatusCreated, view, "User registered successfully")
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadBody)
		return
	}

	view, pair, err := s.accounts.Login(c.Request.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.setSessionCookies(c, pair)
	respond(c, http.StatusOK, sessionData{User: view, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"User logged in successfully")
}

// refresh takes the token from the refreshToken cookie, falling back to the
// JSON body.
func (s *HTTPServer) refresh(c *gin.Context) {
	token, err := c.Cookie(common.RefreshTokenCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		_ = c.ShouldBindJSON(&req)
		token = req.RefreshToken
	}

	pair, err := s.accounts.Refresh(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.setSessionCookies(c, pair)
	respond(c, http.StatusOK, pair, "Access token refreshed")
}

func (s *HTTPServer) logout(c *gin.Context) {
	if err := s.accounts.Logout(c.Request.Context(), accountID(c)); err != nil {
		s.fail(c, err)
		return
	}

	s.clearSessionCookies(c)
	respond(c, http.StatusOK, nil, "User logged out")
}

func (s *HTTPServer) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadBody)
		return
	}

	if err := s.accounts.ChangePassword(c.Request.Context(), accountID(c), req.OldPassword, req.NewPassword); err != nil {
		s.fail(c, err)
		return
	}

	s.clearSessionCookies(c)
	respond(c, http.StatusOK, nil, "Password changed successfully")
}

func (s *HTTPServer) currentUser(c *gin.Context) {
	view, err := s.accounts.GetCurrentAccount(c.Request.Context(), accountID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Current user fetched successfully")
}

func (s *HTTPServer) updateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadBody)
		return
	}

	view, err := s.accounts.UpdateProfile(c.Request.Context(), accountID(c), services.ProfileUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Account details updated successfully")
}

type replaceFunc func(c *gin.Context, staged *media.StagedFile) (*models.AccountView, error)

func (s *HTTPServer) replaceImage(c *gin.Context, field, message string, replace replaceFunc) {
	staged, err := s.stage(c, field)
	if err != nil {
		s.fail(c, err)
		return
	}

	view, err := replace(c, staged)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, message)
}

func (s *HTTPServer) replaceAvatar(c *gin.Context) {
	s.replaceImage(c, "avatar", "Avatar image updated successfully",
		func(c *gin.Context, f *media.StagedFile) (*models.AccountView, error) {
			return s.accounts.ReplaceAvatar(c.Request.Context(), accountID(c), f)
		})
}

func (s *HTTPServer) replaceCover(c *gin.Context) {
	s.replaceImage(c, "coverImage", "Cover image updated successfully",
		func(c *gin.Context, f *media.StagedFile) (*models.AccountView, error) {
			return s.accounts.ReplaceCover(c.Request.Context(), accountID(c), f)
		})
}

func (s *HTTPServer) deleteAccount(c *gin.Context) {
	if err := s.accounts.DeleteAccount(c.Request.Context(), accountID(c)); err != nil {
		s.fail(c, err)
		return
	}

	s.clearSessionCookies(c)
	respond(c, http.StatusOK, nil, "Account deleted successfully")
}
