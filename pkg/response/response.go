package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
)

// ErrorBody is the error contract returned to clients.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, data)
}

// Error sends an error response converting the error to the common structure.
// Unauthorized responses carry a bearer challenge.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	if appErr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(appErr.Status, ErrorBody{Detail: appErr.Message, Code: appErr.Code})
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
