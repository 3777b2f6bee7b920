// internal/service/types.go
package service

import (
	"errors"

	"printer-service/internal/drawer"
	"printer-service/internal/keepalive"
	"printer-service/internal/model"
	"printer-service/internal/transport"
	"printer-service/pkg/receipt"
)

// ErrInvalidReceipt wraps receipt validation failures
var ErrInvalidReceipt = errors.New("invalid receipt")

// EventPublisher receives service events for UI subscribers
type EventPublisher interface {
	Publish(event model.ServiceEvent)
}

// PrintRequest represents a receipt print request
type PrintRequest struct {
	Receipt *receipt.Model  `json:"receipt" binding:"required"`
	Source  model.JobSource `json:"-"`
}

// ScanRequest represents a printer scan request
type ScanRequest struct {
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	ServiceUUIDs   []string `json:"service_uuids,omitempty"`
	NamePrefixes   []string `json:"name_prefixes,omitempty"`
	AcceptAll      bool     `json:"accept_all,omitempty"`
}

// ConnectRequest selects a printer by address. An empty address scans and
// connects to the best candidate.
type ConnectRequest struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	ScanRequest
}

// PreviewResult is a compiled receipt that was not sent
type PreviewResult struct {
	Bytes     int    `json:"bytes"`
	Chunks    int    `json:"chunks"`
	ChunkSize int    `json:"chunk_size"`
	Hex       string `json:"hex"`
}

// PrinterStatus is the operator-facing status snapshot
type PrinterStatus struct {
	Backend      string                `json:"backend"`
	Available    bool                  `json:"available"`
	Availability *model.ErrorInfo      `json:"availability_error,omitempty"`
	Session      model.SessionInfo     `json:"session"`
	Stats        model.ConnectionStats `json:"stats"`
	Health       *model.DeviceHealth   `json:"health,omitempty"`
	Transport    transport.Stats       `json:"transport"`
	Drawer       drawer.Stats          `json:"drawer"`
	KeepAlive    *keepalive.Stats      `json:"keepalive,omitempty"`
	Jobs         *model.JobStats       `json:"jobs,omitempty"`
}

// JobListResult is one page of the journal
type JobListResult struct {
	Jobs   []*model.PrintJob `json:"jobs"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
