package http

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

var errRouteNotFound = common.NotFound("route not found")

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, common.ErrorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Response{StatusCode: status, Data: data, Message: message, Success: true})
}

// fail writes the error envelope. Only the client-facing message leaves the
// process; causes are logged.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusFor(common.Kind(err))

	ctx := c.Request.Context()
	if status == http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "path", c.Request.URL.Path, "error", err)
	} else {
		s.logger.Debug(ctx, "request rejected", "path", c.Request.URL.Path, "status", status, "error", err)
	}

	c.AbortWithStatusJSON(status, Response{StatusCode: status, Data: nil, Message: common.Message(err), Success: false})
}
