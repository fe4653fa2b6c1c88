package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/pkg/logging"
)

var errMediaDisabled = errors.New("object storage is not configured")

// ErrorBody is the payload of every failed response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError renders err with the status of its kind. Dependency and unclassified
// errors are logged and rendered with a generic message.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	detail := ErrorDetail{Code: "internal", Message: "internal server error"}

	e, ok := apperr.As(err)
	if ok && e.Kind != apperr.KindDependency {
		detail = ErrorDetail{Code: e.Code, Message: e.Message}
	} else {
		logging.FromContext(c.Request.Context()).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, ErrorBody{Error: detail})
}

// bindError converts a gin binding failure to a validation error. Failed emoji fields
// keep the domain code so clients see the same error as from the service layer.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid_request", "request body or query is malformed")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "emoji":
			return apperr.Validation("invalid_emoji", fmt.Sprintf("%v is not a supported reaction", fe.Value()))
		case "timezone":
			return apperr.Validation("invalid_timezone", fmt.Sprintf("unknown timezone %q", fe.Value()))
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return apperr.Validation("invalid_request", "invalid fields: "+strings.Join(fields, ", "))
}
