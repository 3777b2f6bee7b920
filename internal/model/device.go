// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ConnectionState represents where the printer link is in its lifecycle
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateScanning     ConnectionState = "SCANNING"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
	StateError        ConnectionState = "ERROR"
)

// Backend identifies the platform BLE binding used to reach the printer
type Backend string

const (
	BackendBlueZ  Backend = "bluez"
	BackendGoBLE  Backend = "goble"
	BackendRFCOMM Backend = "rfcomm"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// PrinterDevice is a discovered or remembered peripheral.
// Address is the platform handle used to open a link; it stays the same across reconnects.
type PrinterDevice struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	RSSI         int      `json:"rssi,omitempty"`
	ServiceUUIDs []string `json:"service_uuids,omitempty"`
}

// DisplayName returns the advertised name or the address when the name is empty
func (d PrinterDevice) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// SessionInfo is a read-only snapshot of the live connection session
type SessionInfo struct {
	State          ConnectionState `json:"state"`
	Device         *PrinterDevice  `json:"device,omitempty"`
	ServiceUUID    string          `json:"service_uuid,omitempty"`
	Characteristic string          `json:"characteristic_uuid,omitempty"`
	WithoutResp    bool            `json:"write_without_response"`
	ConnectedSince *time.Time      `json:"connected_since,omitempty"`
	ReconnectCount int             `json:"reconnect_count"`
	LastError      *ErrorInfo      `json:"last_error,omitempty"`
}

// ConnectionStats aggregates operator-facing counters. Not authoritative.
type ConnectionStats struct {
	TotalPrintJobs  int64      `json:"total_print_jobs"`
	FailedPrintJobs int64      `json:"failed_print_jobs"`
	ReconnectCount  int64      `json:"reconnect_count"`
	ProbeFailures   int64      `json:"probe_failures"`
	SkippedProbes   int64      `json:"skipped_probes"`
	LastError       *ErrorInfo `json:"last_error,omitempty"`
	LastKeepAlive   *time.Time `json:"last_keep_alive,omitempty"`
	ConnectedSince  *time.Time `json:"connected_since,omitempty"`
	HealthScore     int        `json:"health_score"`
}

// DeviceHealth represents computed printer health
type DeviceHealth struct {
	HealthScore      int             `json:"health_score"`
	State            ConnectionState `json:"state"`
	UptimeSeconds    float64         `json:"uptime_seconds"`
	RecentReconnects int             `json:"recent_reconnects"`
	LastKeepAlive    *time.Time      `json:"last_keep_alive,omitempty"`
	LastProbeFailed  bool            `json:"last_probe_failed"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// ErrorInfo structure
type ErrorInfo struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	ErrorTime time.Time `json:"error_time"`
}
