package handler

import (
	"errors"
	"net/http"

	"ricemill/internal/apperror"
	"ricemill/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindInvalidTransition, apperror.KindInvalidState, apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindPreconditionFailed, apperror.KindDivisionByZero:
		return http.StatusUnprocessableEntity
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the error envelope. Storage failures hide the
// underlying cause from the client.
func respondError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.ErrorWithCode(http.StatusInternalServerError, string(apperror.KindStorage), "Internal server error"))
		return
	}

	status := statusFor(appErr.Kind)
	message := appErr.Error()
	if appErr.Kind == apperror.KindStorage {
		_ = c.Error(err)
		message = appErr.Message
	}
	c.JSON(status, response.ErrorWithCode(status, string(appErr.Kind), message))
}

func bindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperror.KindValidation), "Invalid request payload: "+err.Error()))
}

// currentUserID returns the caller set by the auth middleware.
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return "", false
	}
	id, _ := userID.(string)
	return id, true
}
