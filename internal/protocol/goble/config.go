// internal/protocol/goble/config.go
package goble

// DefaultMTU is requested during the MTU exchange after dialing
const DefaultMTU = 185

// Config represents go-ble backend configuration
type Config struct {
	DeviceID int
	MTU      int
}
