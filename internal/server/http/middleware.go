package http

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/gin-gonic/gin"
)

const accountIDKey = "accountID"

// requireAuth resolves the access token from the accessToken cookie or the
// Authorization header and stores the account id on the context.
func (s *HTTPServer) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(common.AccessTokenCookieName)
		if err != nil || token == "" {
			token = bearerToken(c.GetHeader("Authorization"))
		}

		claims, err := s.accounts.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.fail(c, err)
			return
		}

		c.Set(accountIDKey, claims.ID)
		c.Next()
	}
}

func bearerToken(h string) string {
	const pfx = "Bearer "
	if len(h) > len(pfx) && strings.EqualFold(h[:len(pfx)], pfx) {
		return strings.TrimSpace(h[len(pfx):])
	}
	return ""
}

func accountID(c *gin.Context) string {
	return c.GetString(accountIDKey)
}

// limitBody caps the request body at files uploads of MaxUploadSize plus
// room for the other form fields.
func (s *HTTPServer) limitBody(files int64) gin.HandlerFunc {
	limit := files*s.opts.MaxUploadSize + 1<<20
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
