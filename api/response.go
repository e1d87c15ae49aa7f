package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Total   *int64              `json:"total,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondError maps an error kind to its HTTP status. Unknown errors are
// logged and reported with a generic message.
func respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: "validation failed", Errors: verr.Fields})
	case errors.Is(err, domain.ErrConflict):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: domain.Message(err)})
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, envelope{Message: domain.Message(err)})
	case errors.Is(err, domain.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, envelope{Message: domain.Message(err)})
	default:
		requestLogger(c).WithError(err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Message: "internal server error"})
	}
}

// respondBindError reports a malformed or invalid request body.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: "malformed request body"})
		return
	}
	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, domain.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: "validation failed", Errors: fields})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "uuid":
		return "must be a UUID"
	case flightCodeTag:
		return "must be an airline code followed by a flight number, e.g. AV-1234"
	case iataTag:
		return "must be a 3-letter airport code"
	case "gtfield":
		return "must be after " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func invalidParam(c *gin.Context, name, message string) {
	verr := &domain.ValidationError{}
	verr.Add(name, message)
	respondError(c, verr)
}

func requestLogger(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(logrus.FieldLogger); ok {
			return log
		}
	}
	return logrus.StandardLogger()
}
