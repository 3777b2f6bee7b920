// internal/connection/errors.go
package connection

import (
	"context"
	"errors"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

var errConnectSuperseded = errors.New("connect superseded by disconnect or a newer connect")

// classify maps platform errors onto ErrorKinds. Errors already carrying a kind pass through.
func classify(err error) error {
	if err == nil || model.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return model.NewError(model.KindNoDeviceSelected, err)
	case errors.Is(err, driver.ErrPermissionDenied):
		return model.NewError(model.KindSecurityError, err)
	default:
		// range loss, deadline, refused link
		return model.NewError(model.KindConnectionTimeout, err)
	}
}
