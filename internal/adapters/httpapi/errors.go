package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"teammatch/internal/blob"
	"teammatch/internal/core"
	"teammatch/pkg/domain"
)

// Machine codes returned alongside non-conflict failures. Conflicts use their
// domain reason as code.
const (
	codeInvalidArgument = "invalid_argument"
	codeInvalidTable    = "invalid_table"
	codeRuleViolation   = "rule_violation"
	codeUploadNotFound  = "upload_not_found"
	codeUploadTooLarge  = "upload_too_large"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal"
)

type errorBody struct {
	Code    string   `json:"code"`
	Error   string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
	Entity  string   `json:"entity,omitempty"`
	Details []string `json:"problems,omitempty"`
}

// status maps a service error to an HTTP status and machine code.
func status(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}
	var (
		conflict domain.ConflictError
		notFound domain.NotFoundError
		rules    domain.RuleViolationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &conflict):
		body.Code = string(conflict.Reason)
		return http.StatusConflict, body
	case errors.As(err, &notFound):
		body.Code = string(notFound.Entity) + "_not_found"
		body.Entity = string(notFound.Entity)
		return http.StatusNotFound, body
	case errors.As(err, &rules):
		body.Code = codeRuleViolation
		return http.StatusConflict, body
	case errors.Is(err, blob.ErrNotFound):
		body.Code = codeUploadNotFound
		return http.StatusNotFound, body
	case errors.As(err, &tooLarge):
		body.Code = codeUploadTooLarge
		return http.StatusRequestEntityTooLarge, body
	case errors.Is(err, core.ErrInvalidArgument):
		body.Code = codeInvalidArgument
		return http.StatusBadRequest, body
	case errors.Is(err, core.ErrNoBlobStore):
		body.Code = codeUnavailable
		return http.StatusServiceUnavailable, body
	default:
		body.Code = codeInternal
		return http.StatusInternalServerError, body
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code, body := status(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err.Error())
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(code, body)
}

// badRequest reports a binding failure, naming the offending fields when the
// validator produced them.
func badRequest(c *gin.Context, err error) {
	body := errorBody{Code: codeInvalidArgument, Error: err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			body.Fields = append(body.Fields, strings.ToLower(fe.Field())+":"+fe.Tag())
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
