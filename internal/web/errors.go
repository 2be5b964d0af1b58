package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/companies"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/session"
)

var (
	errConfirmRequired = errors.New("confirmation required")
	errForbidden       = errors.New("insufficient rights")
)

// classify maps err to a response status and a user-visible message.
func classify(err error, fallback string) (int, string) {
	var validation *companies.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.Error()
	case errors.Is(err, media.ErrUnknownFolder), errors.Is(err, media.ErrUnknownImage):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, media.ErrEmptyName), errors.Is(err, media.ErrInvalidName),
		errors.Is(err, media.ErrNoSelection):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, media.ErrRootFolder), errors.Is(err, errForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, errConfirmRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrUnknownOption):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrNoContext):
		return http.StatusConflict, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The server did not answer in time"
	}

	msg := client.Message(err, fallback)
	switch client.KindOf(err) {
	case client.KindUnauthorized:
		return http.StatusUnauthorized, msg
	case client.KindForbidden:
		return http.StatusForbidden, msg
	case client.KindNotFound:
		return http.StatusNotFound, msg
	case client.KindValidation:
		return http.StatusUnprocessableEntity, msg
	case client.KindServer, client.KindNetwork:
		return http.StatusBadGateway, msg
	}
	return http.StatusInternalServerError, msg
}

// fail writes an error response.
func fail(c *gin.Context, err error, fallback string) {
	status, msg := classify(err, fallback)
	if status >= 500 {
		logging.WithContext(c.Request.Context()).Error(fallback, logging.Err(err))
	}
	body := gin.H{"error": msg}
	if status == http.StatusUnauthorized {
		body["redirect"] = session.PathLogin
	}
	c.AbortWithStatusJSON(status, body)
}
