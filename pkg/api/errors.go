package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/ingest"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/store"
)

// abortWithServiceError maps a service error to a status for the
// non-streaming, UI-facing endpoints. The query endpoints never route
// through here — they answer 200 unconditionally.
func abortWithServiceError(c *gin.Context, err error) {
	switch {
	case isNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scenario.ErrActivationBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case isValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, config.ErrScenarioNotFound)
}

func isValidation(err error) bool {
	var vErr *config.ValidationError
	return errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrMissingRequiredField) ||
		errors.Is(err, ingest.ErrValidation) ||
		errors.As(err, &vErr)
}
