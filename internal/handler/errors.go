package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/repository"
)

// respondError maps err onto the error envelope. Anything that is not a
// client error is logged and reported to Sentry.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch {
	case apperrors.IsValidation(err):
		abort(c, http.StatusBadRequest, "validation_error", message)
	case apperrors.IsNotFound(err):
		abort(c, http.StatusNotFound, "not_found", message)
	case apperrors.IsConflict(err):
		abort(c, http.StatusConflict, "conflict", message)
	default:
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Errorf("Request failed: %v", err)
		sentry.CaptureException(err)
		abort(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func abort(c *gin.Context, code int, kind, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, "validation_error", message)
}

// pathID reads a positive integer path parameter
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		abort(c, http.StatusBadRequest, "invalid_id", "Invalid "+name+": must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// bindJSON decodes the request body into req
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryPage reads page and page_size
func queryPage(c *gin.Context) repository.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(repository.DefaultPageSize)))
	return repository.Page{Page: page, PageSize: size}.Normalize()
}

// queryBool reads an optional boolean filter
func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+": must be true or false")
		return nil, false
	}
	return &v, true
}
