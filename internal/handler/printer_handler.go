// internal/handler/printer_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// PrinterHandler handles connection and device control requests
type PrinterHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(printerService *service.PrinterService, logger *zap.Logger) *PrinterHandler {
	return &PrinterHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "printer-handler"),
	}
}

// RegisterRoutes registers printer routes
func (h *PrinterHandler) RegisterRoutes(router *gin.RouterGroup) {
	printer := router.Group("/printer")
	{
		printer.GET("/status", h.GetStatus)
		printer.POST("/scan", h.Scan)
		printer.POST("/connect", h.Connect)
		printer.POST("/disconnect", h.Disconnect)
		printer.POST("/drawer", h.OpenDrawer)
		printer.POST("/test", h.TestPrint)
	}
}

// GetStatus returns the printer status snapshot
// @Summary Printer status
// @Description Connection state, session, counters, keep-alive health and journal totals
// @Tags Printer
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.PrinterStatus} "Printer status"
// @Router /api/v1/printer/status [get]
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	status := h.printerService.Status(c.Request.Context())
	utils.SuccessResponse(c, http.StatusOK, "Printer status retrieved", status)
}

// Scan discovers nearby printers
// @Summary Scan for printers
// @Description Discover printer candidates. The live session is never touched.
// @Tags Printer
// @Accept json
// @Produce json
// @Param request body service.ScanRequest false "Scan options"
// @Success 200 {object} utils.APIResponse{data=object{devices=[]model.PrinterDevice,count=int}} "Scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 503 {object} utils.APIResponse "Bluetooth unavailable"
// @Router /api/v1/printer/scan [post]
func (h *PrinterHandler) Scan(c *gin.Context) {
	var req service.ScanRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	devices, err := h.printerService.Scan(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Printer scan failed", zap.Error(err))
		respondError(c, "Printer scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scan completed", gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// Connect opens a session to a printer
// @Summary Connect to a printer
// @Description Connect to the given address, or scan and connect to the best candidate when the address is empty
// @Tags Printer
// @Accept json
// @Produce json
// @Param request body service.ConnectRequest false "Printer to connect to"
// @Success 200 {object} utils.APIResponse{data=model.SessionInfo} "Connected"
// @Failure 404 {object} utils.APIResponse "No printer found"
// @Failure 504 {object} utils.APIResponse "Connection timed out"
// @Router /api/v1/printer/connect [post]
func (h *PrinterHandler) Connect(c *gin.Context) {
	var req service.ConnectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	info, err := h.printerService.Connect(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Printer connect failed", zap.String("address", req.Address), zap.Error(err))
		respondError(c, "Failed to connect printer", err)
		return
	}

	h.logger.Info("Printer connected", zap.Any("device", info.Device))
	utils.SuccessResponse(c, http.StatusOK, "Printer connected", info)
}

// Disconnect closes the session
// @Summary Disconnect the printer
// @Description Close the session and cancel any reconnect in progress
// @Tags Printer
// @Produce json
// @Success 200 {object} utils.APIResponse "Disconnected"
// @Router /api/v1/printer/disconnect [post]
func (h *PrinterHandler) Disconnect(c *gin.Context) {
	if err := h.printerService.Disconnect(c.Request.Context()); err != nil {
		respondError(c, "Failed to disconnect printer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Printer disconnected", nil)
}

// OpenDrawer pulses the cash drawer
// @Summary Open cash drawer
// @Description Send the drawer kick pulse through the printer
// @Tags Printer
// @Produce json
// @Success 200 {object} utils.APIResponse "Drawer opened"
// @Failure 409 {object} utils.APIResponse "Printer not connected or busy"
// @Router /api/v1/printer/drawer [post]
func (h *PrinterHandler) OpenDrawer(c *gin.Context) {
	if err := h.printerService.OpenDrawer(c.Request.Context()); err != nil {
		utils.LogError(h.logger.Logger, "Drawer kick failed", err)
		utils.PrinterErrorResponse(c, "Failed to open drawer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Drawer opened", nil)
}

// TestPrint prints a self-test receipt
// @Summary Print a test receipt
// @Tags Printer
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Test receipt printed"
// @Failure 409 {object} utils.APIResponse "Printer not connected or busy"
// @Router /api/v1/printer/test [post]
func (h *PrinterHandler) TestPrint(c *gin.Context) {
	job, err := h.printerService.TestPrint(c.Request.Context())
	if err != nil {
		respondJobError(c, "Test print failed", err, job)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Test receipt printed", job)
}

// bindOptionalJSON binds the body when there is one. It writes the 400 and
// returns false on malformed input.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}
