// internal/connection/negotiate.go
package connection

import (
	"context"
	"errors"
	"fmt"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

// endpoint is the negotiated write target. It only lives inside a Session.
type endpoint struct {
	service         *driver.Service
	char            *driver.Characteristic
	withoutResponse bool
}

// negotiate walks candidates in priority order and returns the first service
// holding a writable characteristic. Missing services are skipped silently.
func negotiate(ctx context.Context, link driver.Link, candidates []string, preferWithoutResponse bool) (*endpoint, error) {
	found := 0
	for _, uuid := range candidates {
		svc, err := link.DiscoverService(ctx, uuid)
		if errors.Is(err, driver.ErrServiceNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to discover service %s: %w", uuid, err)
		}
		found++

		chars, err := link.Characteristics(ctx, svc)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate characteristics of %s: %w", svc.UUID, err)
		}

		if c, nr := pickWritable(chars, preferWithoutResponse); c != nil {
			return &endpoint{service: svc, char: c, withoutResponse: nr}, nil
		}
	}

	if found == 0 {
		return nil, model.Errorf(model.KindServiceNotFound, "none of %d candidate services present", len(candidates))
	}
	return nil, model.Errorf(model.KindNoWritableCharacteristic, "%d candidate services checked", found)
}

// pickWritable chooses the first characteristic with the preferred write mode,
// falling back to the first with the other mode.
func pickWritable(chars []*driver.Characteristic, preferWithoutResponse bool) (*driver.Characteristic, bool) {
	first, second := driver.PropWriteNR, driver.PropWrite
	if !preferWithoutResponse {
		first, second = second, first
	}
	for _, want := range []driver.Property{first, second} {
		for _, c := range chars {
			if c.Properties.Has(want) {
				return c, want == driver.PropWriteNR
			}
		}
	}
	return nil, false
}
