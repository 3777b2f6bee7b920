// internal/handler/print_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/repository"
	"printer-service/internal/service"
	"printer-service/internal/utils"
	"printer-service/pkg/receipt"
)

// PrintHandler handles receipt printing and the print-job journal
type PrintHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewPrintHandler creates a new print handler
func NewPrintHandler(printerService *service.PrinterService, logger *zap.Logger) *PrintHandler {
	return &PrintHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "print-handler"),
	}
}

// RegisterRoutes registers print routes
func (h *PrintHandler) RegisterRoutes(router *gin.RouterGroup) {
	printing := router.Group("/print")
	{
		printing.POST("/receipts", h.PrintReceipt)
		printing.POST("/orders/completed", h.OrderCompleted)
		printing.POST("/preview", h.Preview)
		printing.GET("/jobs", h.ListJobs)
		printing.GET("/jobs/:job_id", h.GetJob)
	}
}

// PrintReceipt prints a finalized receipt once
// @Summary Print a receipt
// @Description Compile and send a receipt. A failed print is journaled and never retried.
// @Tags Print
// @Accept json
// @Produce json
// @Param request body service.PrintRequest true "Receipt to print"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Receipt printed"
// @Failure 400 {object} utils.APIResponse "Invalid receipt"
// @Failure 409 {object} utils.APIResponse{data=model.PrintJob} "Printer not connected or busy"
// @Failure 502 {object} utils.APIResponse{data=model.PrintJob} "Write failed"
// @Router /api/v1/print/receipts [post]
func (h *PrintHandler) PrintReceipt(c *gin.Context) {
	var req service.PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.Source = model.JobSourceManual

	job, err := h.printerService.Print(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Receipt print failed", zap.Error(err))
		respondJobError(c, "Receipt print failed", err, job)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Receipt printed", job)
}

// OrderCompleted hands a completed order to the auto-print policy
// @Summary Submit a completed order
// @Description Apply the auto-print policy. The job is PENDING when a print was scheduled and SKIPPED otherwise.
// @Tags Print
// @Accept json
// @Produce json
// @Param request body service.PrintRequest true "Completed order receipt"
// @Success 202 {object} utils.APIResponse{data=model.PrintJob} "Auto print scheduled"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Auto print skipped"
// @Failure 400 {object} utils.APIResponse "Invalid receipt"
// @Router /api/v1/print/orders/completed [post]
func (h *PrintHandler) OrderCompleted(c *gin.Context) {
	var req service.PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.printerService.SubmitCompletedOrder(c.Request.Context(), req.Receipt)
	if err != nil {
		respondError(c, "Failed to submit completed order", err)
		return
	}

	if job.Status == model.JobStatusSkipped {
		utils.SuccessResponse(c, http.StatusOK, "Auto print skipped", job)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Auto print scheduled", job)
}

// Preview compiles a receipt without printing it
// @Summary Preview receipt bytes
// @Description Compile a receipt to ESC/POS and return the bytes as hex. Nothing is sent.
// @Tags Print
// @Accept json
// @Produce json
// @Param request body receipt.Model true "Receipt to compile"
// @Success 200 {object} utils.APIResponse{data=service.PreviewResult} "Compiled receipt"
// @Failure 400 {object} utils.APIResponse "Invalid receipt"
// @Router /api/v1/print/preview [post]
func (h *PrintHandler) Preview(c *gin.Context) {
	var r receipt.Model
	if err := c.ShouldBindJSON(&r); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	preview, err := h.printerService.Preview(c.Request.Context(), &r)
	if err != nil {
		respondError(c, "Failed to compile receipt", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Receipt compiled", preview)
}

// ListJobs lists the print-job journal
// @Summary List print jobs
// @Description Newest first, with optional status and order filters
// @Tags Print
// @Produce json
// @Param status query string false "Filter by status" Enums(PENDING, PRINTING, COMPLETED, FAILED, REJECTED, SKIPPED)
// @Param order_id query string false "Filter by order id"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} utils.APIResponse{data=service.JobListResult} "Print jobs"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /api/v1/print/jobs [get]
func (h *PrintHandler) ListJobs(c *gin.Context) {
	filter := model.JobFilter{
		Status:  model.JobStatus(c.Query("status")),
		OrderID: c.Query("order_id"),
		Limit:   repository.DefaultListLimit,
	}

	if filter.Status != "" && !validJobStatus(filter.Status) {
		utils.ValidationErrorResponse(c, map[string]string{"status": "unknown job status"})
		return
	}
	if limit := c.Query("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil || l <= 0 || l > repository.MaxListLimit {
			utils.ValidationErrorResponse(c, map[string]string{
				"limit": "must be between 1 and " + strconv.Itoa(repository.MaxListLimit),
			})
			return
		}
		filter.Limit = l
	}
	if offset := c.Query("offset"); offset != "" {
		o, err := strconv.Atoi(offset)
		if err != nil || o < 0 {
			utils.ValidationErrorResponse(c, map[string]string{"offset": "must be zero or positive"})
			return
		}
		filter.Offset = o
	}

	result, err := h.printerService.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list print jobs", zap.Error(err))
		respondError(c, "Failed to list print jobs", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Print jobs retrieved", result)
}

// GetJob returns one journal entry
// @Summary Get a print job
// @Tags Print
// @Produce json
// @Param job_id path string true "Job ID"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Print job"
// @Failure 400 {object} utils.APIResponse "Invalid job id"
// @Failure 404 {object} utils.APIResponse "Job not found"
// @Router /api/v1/print/jobs/{job_id} [get]
func (h *PrintHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid job id", err)
		return
	}

	job, err := h.printerService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Print job not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Print job retrieved", job)
}

func validJobStatus(s model.JobStatus) bool {
	switch s {
	case model.JobStatusPending, model.JobStatusPrinting, model.JobStatusCompleted,
		model.JobStatusFailed, model.JobStatusRejected, model.JobStatusSkipped:
		return true
	}
	return false
}
