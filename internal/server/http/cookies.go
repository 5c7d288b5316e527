package http

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

func (s *HTTPServer) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if value == "" {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.opts.CookieSecure, true)
}

func (s *HTTPServer) setSessionCookies(c *gin.Context, pair *models.TokenPair) {
	s.setCookie(c, common.AccessTokenCookieName, pair.AccessToken, s.opts.AccessTokenTTL)
	s.setCookie(c, common.RefreshTokenCookieName, pair.RefreshToken, s.opts.RefreshTokenTTL)
}

func (s *HTTPServer) clearSessionCookies(c *gin.Context) {
	s.setCookie(c, common.AccessTokenCookieName, "", 0)
	s.setCookie(c, common.RefreshTokenCookieName, "", 0)
}
