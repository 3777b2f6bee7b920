// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"printer-service/internal/model"
	"printer-service/internal/repository"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// respondError maps service, repository and printer errors onto the API envelope
func respondError(c *gin.Context, message string, err error) {
	utils.ErrorResponseWithData(c, statusFor(err), message, err, nil)
}

// respondJobError reports a failed print together with its journal entry
func respondJobError(c *gin.Context, message string, err error, job *model.PrintJob) {
	if job == nil {
		respondError(c, message, err)
		return
	}
	utils.ErrorResponseWithData(c, statusFor(err), message, err, job)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidReceipt):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound
	case model.KindOf(err) != "":
		return utils.StatusForKind(model.KindOf(err))
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
