package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quennel-io/hearthlink/internal/cloud"
	"github.com/quennel-io/hearthlink/internal/directory"
	"github.com/quennel-io/hearthlink/internal/history"
	"github.com/quennel-io/hearthlink/internal/infrastructure/config"
	"github.com/quennel-io/hearthlink/internal/infrastructure/mqtt"
	"github.com/quennel-io/hearthlink/internal/param"
)

// commandTimeout bounds a single cloud write triggered from MQTT.
const commandTimeout = 30 * time.Second

// Directory is the interface the bridge needs from the directory service.
type Directory interface {
	Refresh(ctx context.Context) error
	Devices() []directory.DeviceRecord
	Hubs() []directory.HubRecord
	WriteParameter(ctx context.Context, serial string, t param.Type, value any) error
}

// History is the interface the bridge needs from the event service.
type History interface {
	Query(ctx context.Context, start, end time.Time, filter *history.Filter, maxResults int) ([]history.EventRecord, error)
}

// Session exposes the persistable session state.
type Session interface {
	Snapshot() cloud.Snapshot
}

// Broker is the interface for the local MQTT bus. May be nil when
// MQTT is disabled.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Archive is the interface for the time-series event archive. May be
// nil when InfluxDB is disabled.
type Archive interface {
	WriteEvent(deviceSN, stationSN, deviceName string, start time.Time, durationSeconds int64)
	WritePollStats(cycle string, durationMS int64, records int)
}

// SessionStore persists session snapshots.
type SessionStore interface {
	Save(ctx context.Context, snap cloud.Snapshot) error
}

// DirectoryStore persists directory snapshots.
type DirectoryStore interface {
	Save(ctx context.Context, devices []directory.DeviceRecord, hubs []directory.HubRecord) error
}

// CursorStore persists the event polling high-water mark.
type CursorStore interface {
	Save(ctx context.Context, lastEventTime int64) error
	Load(ctx context.Context) (int64, error)
}

// Logger is the minimal logging interface the bridge needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge drives the poll loop that keeps the local mirror current.
type Bridge struct {
	cfg       config.BridgeConfig
	directory Directory
	history   History
	session   Session

	broker  Broker
	archive Archive

	sessions  SessionStore
	snapshots DirectoryStore
	cursor    CursorStore

	qos    byte
	logger Logger
}

// New creates a bridge.
//
// broker and archive may be nil; the corresponding outputs are then
// skipped. The stores must not be nil.
func New(cfg config.BridgeConfig, dir Directory, hist History, session Session,
	broker Broker, archive Archive,
	sessions SessionStore, snapshots DirectoryStore, cursor CursorStore,
	qos byte, logger Logger,
) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		cfg:       cfg,
		directory: dir,
		history:   hist,
		session:   session,
		broker:    broker,
		archive:   archive,
		sessions:  sessions,
		snapshots: snapshots,
		cursor:    cursor,
		qos:       qos,
		logger:    logger,
	}
}

// Run executes the poll loop until ctx is cancelled.
//
// Both cycles run once immediately so the mirror is warm before the
// first ticker fires. The final session snapshot is saved on exit.
func (b *Bridge) Run(ctx context.Context) error {
	if b.broker != nil {
		if err := b.broker.Subscribe(mqtt.Topics{}.AllDeviceParamSets(), b.qos, b.handleParamSet); err != nil {
			return fmt.Errorf("subscribing to command topic: %w", err)
		}
	}

	b.refreshDirectory(ctx)
	b.pollEvents(ctx)

	dirTicker := time.NewTicker(time.Duration(b.cfg.DirectoryInterval) * time.Second)
	defer dirTicker.Stop()
	eventTicker := time.NewTicker(time.Duration(b.cfg.EventInterval) * time.Second)
	defer eventTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.saveSession(context.Background())
			return nil
		case <-dirTicker.C:
			b.refreshDirectory(ctx)
		case <-eventTicker.C:
			b.pollEvents(ctx)
		}
	}
}

// refreshDirectory mirrors the device and hub directory, publishes the
// records, and persists the snapshot.
func (b *Bridge) refreshDirectory(ctx context.Context) {
	start := time.Now()

	if err := b.directory.Refresh(ctx); err != nil {
		b.logger.Error("directory refresh failed", "error", err)
		return
	}

	devices := b.directory.Devices()
	hubs := b.directory.Hubs()

	if b.broker != nil {
		for _, d := range devices {
			b.publishState(mqtt.Topics{}.DeviceState(d.Serial), d.Raw, d)
		}
		for _, h := range hubs {
			b.publishState(mqtt.Topics{}.HubState(h.Serial), h.Raw, h)
		}
	}

	if err := b.snapshots.Save(ctx, devices, hubs); err != nil {
		b.logger.Error("saving directory snapshot failed", "error", err)
	}
	b.saveSession(ctx)

	if b.archive != nil {
		b.archive.WritePollStats("directory", time.Since(start).Milliseconds(), len(devices)+len(hubs))
	}

	b.logger.Debug("directory refreshed",
		"devices", len(devices),
		"hubs", len(hubs),
		"took_ms", time.Since(start).Milliseconds(),
	)
}

// pollEvents fetches event records newer than the persisted high-water
// mark and ships them to MQTT and the archive.
func (b *Bridge) pollEvents(ctx context.Context) {
	start := time.Now()

	last, err := b.cursor.Load(ctx)
	if err != nil {
		b.logger.Error("loading event cursor failed", "error", err)
		return
	}

	windowStart := time.Unix(last, 0)
	if last == 0 {
		windowStart = start.Add(-time.Duration(b.cfg.EventLookback) * time.Second)
	}

	events, err := b.history.Query(ctx, windowStart, start, nil, history.DefaultMaxResults)
	if err != nil {
		b.logger.Error("event poll failed", "error", err)
		return
	}

	published := 0
	newest := last
	for _, e := range events {
		// The window start is inclusive on the cloud side; skip the
		// records from the previous poll.
		if e.StartTime <= last {
			continue
		}
		if e.StartTime > newest {
			newest = e.StartTime
		}

		if b.broker != nil {
			payload, err := json.Marshal(e)
			if err != nil {
				b.logger.Warn("encoding event failed", "device_sn", e.DeviceSerial, "error", err)
				continue
			}
			if err := b.broker.Publish(mqtt.Topics{}.Event(e.DeviceSerial), payload, b.qos, false); err != nil {
				b.logger.Warn("publishing event failed", "device_sn", e.DeviceSerial, "error", err)
			}
		}
		if b.archive != nil {
			b.archive.WriteEvent(e.DeviceSerial, e.StationSerial, e.DeviceName, e.Start(), e.EndTime-e.StartTime)
		}
		published++
	}

	if newest > last {
		if err := b.cursor.Save(ctx, newest); err != nil {
			b.logger.Error("saving event cursor failed", "error", err)
		}
	}

	if b.archive != nil {
		b.archive.WritePollStats("events", time.Since(start).Milliseconds(), published)
	}

	if published > 0 {
		b.logger.Info("events published", "count", published)
	}
}

// paramSetCommand is the payload accepted on the param/set topic.
type paramSetCommand struct {
	ParamType param.Type `json:"param_type"`
	Value     any        `json:"value"`
}

// handleParamSet forwards a parameter write command to the cloud.
//
// Topic shape: hearthlink/device/<serial>/param/set
func (b *Bridge) handleParamSet(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != mqtt.TopicPrefix || parts[1] != "device" || parts[3] != "param" || parts[4] != "set" {
		return fmt.Errorf("unexpected command topic %q", topic)
	}
	serial := parts[2]
	if serial == "" {
		return fmt.Errorf("empty serial in command topic %q", topic)
	}

	var cmd paramSetCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding param command: %w", err)
	}
	if cmd.ParamType == 0 {
		return fmt.Errorf("param command for %s missing param_type", serial)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.directory.WriteParameter(ctx, serial, cmd.ParamType, cmd.Value); err != nil {
		return fmt.Errorf("writing parameter %d on %s: %w", cmd.ParamType, serial, err)
	}

	b.logger.Info("parameter written", "device_sn", serial, "param_type", cmd.ParamType)
	return nil
}

// publishState publishes a retained state payload, preferring the raw
// cloud JSON over a re-marshalled record.
func (b *Bridge) publishState(topic string, raw json.RawMessage, record any) {
	payload := []byte(raw)
	if len(payload) == 0 {
		var err error
		payload, err = json.Marshal(record)
		if err != nil {
			b.logger.Warn("encoding state failed", "topic", topic, "error", err)
			return
		}
	}
	if err := b.broker.PublishRetained(topic, payload); err != nil {
		b.logger.Warn("publishing state failed", "topic", topic, "error", err)
	}
}

// saveSession persists the current session snapshot.
func (b *Bridge) saveSession(ctx context.Context) {
	if err := b.sessions.Save(ctx, b.session.Snapshot()); err != nil {
		b.logger.Error("saving session snapshot failed", "error", err)
	}
}
