// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

// DefaultScanTimeout bounds a scan when the request carries no timeout
const DefaultScanTimeout = 10 * time.Second

// ScanRequest describes which peripherals count as printer candidates
type ScanRequest struct {
	Timeout      time.Duration `json:"timeout"`
	ServiceUUIDs []string      `json:"service_uuids,omitempty"`
	NamePrefixes []string      `json:"name_prefixes,omitempty"`
	AcceptAll    bool          `json:"accept_all"`
}

// DeviceScanner discovers printer candidates on the platform adapter
type DeviceScanner struct {
	platform driver.Platform
	defaults ScanRequest
	logger   *zap.Logger
}

// NewDeviceScanner creates a new DeviceScanner. defaults fills fields a request leaves empty.
func NewDeviceScanner(platform driver.Platform, defaults ScanRequest, logger *zap.Logger) *DeviceScanner {
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultScanTimeout
	}
	return &DeviceScanner{
		platform: platform,
		defaults: defaults,
		logger:   logger.With(zap.String("component", "scanner"), zap.String("backend", platform.Name())),
	}
}

// Scan returns matching devices, best candidates first. It fails with
// BluetoothUnsupported when the platform has no adapter. When ctx is cancelled
// (the operator dismissed selection) it returns an empty list and no error.
func (s *DeviceScanner) Scan(ctx context.Context, req ScanRequest) ([]model.PrinterDevice, error) {
	req = s.withDefaults(req)

	if err := s.platform.Available(ctx); err != nil {
		if model.KindOf(err) == model.KindBluetoothUnsupported {
			return nil, err
		}
		return nil, model.NewError(model.KindBluetoothUnsupported, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("Scan started",
		zap.Duration("timeout", req.Timeout),
		zap.Strings("service_uuids", req.ServiceUUIDs),
		zap.Strings("name_prefixes", req.NamePrefixes),
		zap.Bool("accept_all", req.AcceptAll),
	)

	ads, err := s.platform.Scan(scanCtx, driver.ScanFilter{
		Timeout:      req.Timeout,
		ServiceUUIDs: req.ServiceUUIDs,
	})

	if ctx.Err() != nil {
		s.logger.Info("Scan cancelled", zap.Duration("elapsed", time.Since(start)))
		return []model.PrinterDevice{}, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		if model.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan for printers: %w", err)
	}

	devices := rank(merge(filter(ads, req)), req.ServiceUUIDs)

	s.logger.Info("Scan completed",
		zap.Int("advertisements", len(ads)),
		zap.Int("devices_found", len(devices)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return devices, nil
}

// Defaults returns the request used when callers pass a zero ScanRequest
func (s *DeviceScanner) Defaults() ScanRequest {
	return s.defaults
}

func (s *DeviceScanner) withDefaults(req ScanRequest) ScanRequest {
	if req.Timeout <= 0 {
		req.Timeout = s.defaults.Timeout
	}
	if len(req.ServiceUUIDs) == 0 {
		req.ServiceUUIDs = s.defaults.ServiceUUIDs
	}
	if len(req.NamePrefixes) == 0 {
		req.NamePrefixes = s.defaults.NamePrefixes
	}
	return req
}

// matches reports whether ad passes the name allow-list or the candidate UUID set
func matches(ad driver.Advertisement, req ScanRequest) bool {
	if req.AcceptAll || (len(req.NamePrefixes) == 0 && len(req.ServiceUUIDs) == 0) {
		return true
	}
	name := strings.ToLower(ad.LocalName)
	for _, prefix := range req.NamePrefixes {
		if prefix != "" && strings.HasPrefix(name, strings.ToLower(prefix)) {
			return true
		}
	}
	return priority(ad.ServiceUUIDs, req.ServiceUUIDs) < len(req.ServiceUUIDs)
}

func filter(ads []driver.Advertisement, req ScanRequest) []driver.Advertisement {
	out := make([]driver.Advertisement, 0, len(ads))
	for _, ad := range ads {
		if ad.Address == "" {
			continue
		}
		if matches(ad, req) {
			out = append(out, ad)
		}
	}
	return out
}

// merge folds repeated advertisements of one address into a single device
func merge(ads []driver.Advertisement) []model.PrinterDevice {
	index := make(map[string]int, len(ads))
	devices := make([]model.PrinterDevice, 0, len(ads))

	for _, ad := range ads {
		key := strings.ToUpper(ad.Address)
		i, seen := index[key]
		if !seen {
			index[key] = len(devices)
			devices = append(devices, model.PrinterDevice{
				ID:           key,
				Name:         ad.LocalName,
				Address:      ad.Address,
				RSSI:         ad.RSSI,
				ServiceUUIDs: normalizeAll(ad.ServiceUUIDs),
			})
			continue
		}

		d := &devices[i]
		if d.Name == "" {
			d.Name = ad.LocalName
		}
		if ad.RSSI > d.RSSI {
			d.RSSI = ad.RSSI
		}
		for _, u := range normalizeAll(ad.ServiceUUIDs) {
			if !contains(d.ServiceUUIDs, u) {
				d.ServiceUUIDs = append(d.ServiceUUIDs, u)
			}
		}
	}
	return devices
}

// rank orders devices by candidate service priority, then signal strength
func rank(devices []model.PrinterDevice, candidates []string) []model.PrinterDevice {
	sort.SliceStable(devices, func(i, j int) bool {
		pi := priority(devices[i].ServiceUUIDs, candidates)
		pj := priority(devices[j].ServiceUUIDs, candidates)
		if pi != pj {
			return pi < pj
		}
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// priority returns the index of the first candidate advertised, len(candidates) when none
func priority(advertised, candidates []string) int {
	for i, c := range candidates {
		for _, a := range advertised {
			if driver.SameUUID(a, c) {
				return i
			}
		}
	}
	return len(candidates)
}

func normalizeAll(uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, driver.NormalizeUUID(u))
	}
	return out
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
