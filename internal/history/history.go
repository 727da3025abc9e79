package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quennel-io/hearthlink/internal/cloud"
)

// DefaultMaxResults caps a single query when the caller does not.
const DefaultMaxResults = 1000

// allEventsLookback is the window used to emulate an unbounded
// historical query.
const allEventsLookback = 15 * 365 * 24 * time.Hour

// API is the request primitive the history service needs from the cloud
// client. Satisfied by *cloud.Dispatcher.
type API interface {
	DoEnvelope(ctx context.Context, method, path string, body any) (*cloud.Envelope, error)
}

// Filter narrows an event query. The zero value means all devices, all
// stations, no storage-type restriction.
type Filter struct {
	DeviceSerial  string
	StationSerial string
	StorageType   int
}

// EventRecord is one historical event as returned by the cloud. Records
// are immutable values; the times are epoch seconds as on the wire.
type EventRecord struct {
	MonitorID     int64  `json:"monitor_id"`
	DeviceSerial  string `json:"device_sn"`
	StationSerial string `json:"station_sn"`
	DeviceName    string `json:"device_name"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	StorageType   int    `json:"storage_type"`
	ThumbPath     string `json:"thumb_path"`
	VideoPath     string `json:"video_path"`
}

// Start returns the event start as a time.Time.
func (e EventRecord) Start() time.Time {
	return time.Unix(e.StartTime, 0)
}

// End returns the event end as a time.Time.
func (e EventRecord) End() time.Time {
	return time.Unix(e.EndTime, 0)
}

// Service queries historical event records.
type Service struct {
	api API
}

// New creates a history service on top of the request dispatcher.
func New(api API) *Service {
	return &Service{api: api}
}

// Query fetches event records inside the [start, end] window in a single
// dispatcher call.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - start, end: Window bounds, sent as epoch seconds
//   - filter: Optional narrowing; nil means all devices and stations
//   - maxResults: Record cap; values <= 0 use DefaultMaxResults
//
// Returns:
//   - []EventRecord: Matching records (may be empty)
//   - error: Transport or business failure from the dispatcher
func (s *Service) Query(ctx context.Context, start, end time.Time, filter *Filter, maxResults int) ([]EventRecord, error) {
	if filter == nil {
		filter = &Filter{}
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	env, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathEventHistory, map[string]any{
		"device_sn":  filter.DeviceSerial,
		"station_sn": filter.StationSerial,
		"storage":    filter.StorageType,
		"start_time": start.Unix(),
		"end_time":   end.Unix(),
		"num":        maxResults,
		"offset":     0,
	})
	if err != nil {
		return nil, fmt.Errorf("querying event history: %w", err)
	}

	// An account with no events in the window answers with empty data.
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	var records []EventRecord
	if err := json.Unmarshal(env.Data, &records); err != nil {
		return nil, fmt.Errorf("decoding event history: %w", err)
	}
	return records, nil
}

// All fetches event records for the fifteen years up to now, emulating
// an unbounded historical query against the window-bound API.
func (s *Service) All(ctx context.Context) ([]EventRecord, error) {
	now := time.Now()
	return s.Query(ctx, now.Add(-allEventsLookback), now, nil, DefaultMaxResults)
}
