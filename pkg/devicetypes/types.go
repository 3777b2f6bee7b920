// pkg/devicetypes/types.go
package devicetypes

// Known printer families and the GATT layouts they expose

// ServiceProfile describes a serial-over-GATT service seen on receipt printers
type ServiceProfile struct {
	Name        string `json:"name"`
	ServiceUUID string `json:"service_uuid"`
	// WriteUUID is informational; negotiation picks the first writable characteristic
	WriteUUID string `json:"write_uuid,omitempty"`
}

// CandidateServices is the default negotiation order. Earlier entries win.
var CandidateServices = []ServiceProfile{
	{Name: "generic-18f0", ServiceUUID: "000018f0-0000-1000-8000-00805f9b34fb", WriteUUID: "00002af1-0000-1000-8000-00805f9b34fb"},
	{Name: "thermal-e781", ServiceUUID: "e7810a71-73ae-499d-8c15-faa9aef0c3f2", WriteUUID: "bef8d6c9-9c21-4c9e-b632-bd58c1009f9f"},
	{Name: "isscp-transparent", ServiceUUID: "49535343-fe7d-4ae5-8fa9-9fafd205e455", WriteUUID: "49535343-8841-43f4-a8d4-ecbe34729bb3"},
	{Name: "nordic-uart", ServiceUUID: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", WriteUUID: "6e400002-b5a3-f393-e0a9-e50e24dcca9e"},
	{Name: "phomemo-ff00", ServiceUUID: "0000ff00-0000-1000-8000-00805f9b34fb", WriteUUID: "0000ff02-0000-1000-8000-00805f9b34fb"},
	{Name: "catprinter-ae30", ServiceUUID: "0000ae30-0000-1000-8000-00805f9b34fb", WriteUUID: "0000ae01-0000-1000-8000-00805f9b34fb"},
}

// CandidateServiceUUIDs returns the service UUIDs of CandidateServices in order
func CandidateServiceUUIDs() []string {
	out := make([]string, 0, len(CandidateServices))
	for _, p := range CandidateServices {
		out = append(out, p.ServiceUUID)
	}
	return out
}

// DefaultNamePrefixes are advertised-name prefixes common on POS receipt printers
var DefaultNamePrefixes = []string{
	"Printer", "BlueTooth Printer", "InnerPrinter", "MTP", "MPT", "RPP", "PT-", "POS-", "XP-",
}

// RFCOMMServiceUUID is the serial port profile; the rfcomm backend reports it for every port
const RFCOMMServiceUUID = "00001101-0000-1000-8000-00805f9b34fb"
