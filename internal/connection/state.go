// internal/connection/state.go
package connection

import "printer-service/internal/model"

// transitions lists every allowed state change. Connected is only entered
// from Connecting or Reconnecting.
var transitions = map[model.ConnectionState][]model.ConnectionState{
	model.StateDisconnected: {model.StateScanning},
	model.StateScanning:     {model.StateConnecting, model.StateDisconnected},
	model.StateConnecting:   {model.StateConnected, model.StateDisconnected, model.StateError},
	model.StateConnected:    {model.StateReconnecting, model.StateDisconnected},
	model.StateReconnecting: {model.StateConnected, model.StateError, model.StateDisconnected},
	model.StateError:        {model.StateScanning, model.StateDisconnected},
}

// CanTransition reports whether from → to is a legal state change
func CanTransition(from, to model.ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
