// pkg/driver/types.go
package driver

import (
	"errors"
	"strings"
	"time"
)

// ErrServiceNotFound is returned by Link.DiscoverService for a missing service
var ErrServiceNotFound = errors.New("service not found")

// ErrLinkClosed is returned by Link methods after Close or a drop
var ErrLinkClosed = errors.New("link closed")

// ErrPermissionDenied is returned when the platform refuses access to the adapter or device
var ErrPermissionDenied = errors.New("permission denied")

// Property is the GATT characteristic property bit set
type Property uint8

// Values follow the Bluetooth core specification
const (
	PropBroadcast   Property = 0x01
	PropRead        Property = 0x02
	PropWriteNR     Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
	PropSignedWrite Property = 0x40
	PropExtended    Property = 0x80
)

// Has reports whether all bits of p2 are set
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

// ParseFlags converts BlueZ style flag names into a Property set
func ParseFlags(flags []string) Property {
	var p Property
	for _, f := range flags {
		switch f {
		case "broadcast":
			p |= PropBroadcast
		case "read":
			p |= PropRead
		case "write-without-response":
			p |= PropWriteNR
		case "write":
			p |= PropWrite
		case "notify":
			p |= PropNotify
		case "indicate":
			p |= PropIndicate
		case "authenticated-signed-writes":
			p |= PropSignedWrite
		case "extended-properties":
			p |= PropExtended
		}
	}
	return p
}

// Service is a discovered GATT service. Handle is backend specific.
type Service struct {
	UUID   string
	Handle interface{}
}

// Characteristic is a discovered GATT characteristic. Handle is backend specific.
type Characteristic struct {
	UUID       string
	Properties Property
	Handle     interface{}
}

// ScanFilter narrows platform discovery
type ScanFilter struct {
	Timeout      time.Duration
	ServiceUUIDs []string
}

// Advertisement is one peripheral seen during a scan
type Advertisement struct {
	Address      string
	LocalName    string
	RSSI         int
	ServiceUUIDs []string
	Connectable  bool
}

// NormalizeUUID lowercases a UUID and expands 16-bit and 32-bit short forms
// to the 128-bit Bluetooth base UUID.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	switch len(u) {
	case 4:
		return "0000" + u + "-0000-1000-8000-00805f9b34fb"
	case 8:
		return u + "-0000-1000-8000-00805f9b34fb"
	case 32:
		return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:]
	}
	return u
}

// SameUUID compares UUIDs in any supported notation
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
