package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/quennel-io/hearthlink/internal/cloud"
	"github.com/quennel-io/hearthlink/internal/param"
)

// API is the request primitive the directory needs from the cloud client.
// Satisfied by *cloud.Dispatcher.
type API interface {
	DoEnvelope(ctx context.Context, method, path string, body any) (*cloud.Envelope, error)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service mirrors the account's hub and device directory.
//
// Thread Safety: all public methods are safe for concurrent use. The
// maps are swapped atomically under the mutex on refresh, so readers
// never observe a half-replaced directory.
type Service struct {
	api    API
	logger Logger

	mu      sync.RWMutex
	devices map[string]DeviceRecord
	hubs    map[string]HubRecord

	// Callback for directory-updated events (optional).
	onUpdate   func()
	callbackMu sync.RWMutex
}

// New creates a directory service on top of the request dispatcher.
func New(api API) *Service {
	return &Service{
		api:     api,
		logger:  noopLogger{},
		devices: make(map[string]DeviceRecord),
		hubs:    make(map[string]HubRecord),
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOnUpdate sets a callback invoked after each successful refresh,
// once per refresh.
func (s *Service) SetOnUpdate(callback func()) {
	s.callbackMu.Lock()
	s.onUpdate = callback
	s.callbackMu.Unlock()
}

// Refresh fetches the device and hub listings and replaces the mirror
// wholesale. Partial failure leaves the previous mirror untouched.
func (s *Service) Refresh(ctx context.Context) error {
	devices, err := s.fetchDevices(ctx)
	if err != nil {
		return fmt.Errorf("refreshing devices: %w", err)
	}
	hubs, err := s.fetchHubs(ctx)
	if err != nil {
		return fmt.Errorf("refreshing hubs: %w", err)
	}

	s.mu.Lock()
	s.devices = devices
	s.hubs = hubs
	s.mu.Unlock()

	s.logger.Info("directory refreshed", "devices", len(devices), "hubs", len(hubs))
	s.emitUpdate()
	return nil
}

// fetchDevices retrieves and keys the device listing.
func (s *Service) fetchDevices(ctx context.Context) (map[string]DeviceRecord, error) {
	env, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathDeviceList, map[string]any{
		"device_sn": "",
		"num":       1000,
		"page":      0,
	})
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := env.DecodeData(&raws); err != nil {
		return nil, err
	}

	devices := make(map[string]DeviceRecord, len(raws))
	for _, raw := range raws {
		var d DeviceRecord
		if err := json.Unmarshal(raw, &d); err != nil {
			s.logger.Warn("skipping malformed device descriptor", "error", err)
			continue
		}
		if d.Serial == "" {
			continue
		}
		d.Raw = raw
		devices[d.Serial] = d
	}
	return devices, nil
}

// fetchHubs retrieves and keys the hub listing.
func (s *Service) fetchHubs(ctx context.Context) (map[string]HubRecord, error) {
	env, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathHubList, map[string]any{
		"station_sn": "",
		"num":        1000,
		"page":       0,
	})
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := env.DecodeData(&raws); err != nil {
		return nil, err
	}

	hubs := make(map[string]HubRecord, len(raws))
	for _, raw := range raws {
		var h HubRecord
		if err := json.Unmarshal(raw, &h); err != nil {
			s.logger.Warn("skipping malformed hub descriptor", "error", err)
			continue
		}
		if h.Serial == "" {
			continue
		}
		h.Raw = raw
		hubs[h.Serial] = h
	}
	return hubs, nil
}

// Devices returns a copy of the current device mirror.
func (s *Service) Devices() []DeviceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DeviceRecord, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// Hubs returns a copy of the current hub mirror.
func (s *Service) Hubs() []HubRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HubRecord, 0, len(s.hubs))
	for _, h := range s.hubs {
		out = append(out, h)
	}
	return out
}

// Device returns the record for a serial number.
// Returns ErrDeviceNotFound if the serial is not mirrored.
func (s *Service) Device(serial string) (DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[serial]
	if !ok {
		return DeviceRecord{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	return d, nil
}

// Hub returns the record for a serial number.
// Returns ErrHubNotFound if the serial is not mirrored.
func (s *Service) Hub(serial string) (HubRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hubs[serial]
	if !ok {
		return HubRecord{}, fmt.Errorf("%w: %s", ErrHubNotFound, serial)
	}
	return h, nil
}

// Parameter returns the decoded value of one device parameter.
func (s *Service) Parameter(serial string, t param.Type) (any, error) {
	d, err := s.Device(serial)
	if err != nil {
		return nil, err
	}
	return d.Parameter(t)
}

// WriteParameter encodes and uploads one parameter value for a device.
// The local mirror is not updated; the next refresh reflects the write.
func (s *Service) WriteParameter(ctx context.Context, serial string, t param.Type, value any) error {
	d, err := s.Device(serial)
	if err != nil {
		return err
	}

	_, err = s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathUploadParams, map[string]any{
		"device_sn":  d.Serial,
		"station_sn": d.StationSerial,
		"params": []map[string]any{{
			"param_type":  int(t),
			"param_value": param.Encode(t, value),
		}},
	})
	if err != nil {
		return fmt.Errorf("uploading parameter %d for %s: %w", t, serial, err)
	}

	s.logger.Info("parameter uploaded", "device", serial, "param_type", int(t))
	return nil
}

// Seed loads records into the mirror without contacting the cloud, used
// to restore the last persisted snapshot on startup. A later Refresh
// replaces the seeded state entirely.
func (s *Service) Seed(devices []DeviceRecord, hubs []HubRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = make(map[string]DeviceRecord, len(devices))
	for _, d := range devices {
		if d.Serial != "" {
			s.devices[d.Serial] = d
		}
	}
	s.hubs = make(map[string]HubRecord, len(hubs))
	for _, h := range hubs {
		if h.Serial != "" {
			s.hubs[h.Serial] = h
		}
	}
}

// emitUpdate invokes the update callback if one is registered.
func (s *Service) emitUpdate() {
	s.callbackMu.RLock()
	callback := s.onUpdate
	s.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}
