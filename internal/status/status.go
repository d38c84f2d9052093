// Package status provides a thread-safe status tracker for the holdclick daemon.
// It is read by HTTP handlers and by the heartbeat publisher.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/holdclick/internal/device"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPAddr    string
}

// EventCounts counts button events delivered downstream since startup.
type EventCounts struct {
	Presses   int
	Releases  int
	Synthetic int
}

// Source is anything that reports a device status. *device.Device
// implements it.
type Source interface {
	Status() device.Status
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Devices       []device.Status
	Counts        EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Device returns the status of the named device.
func (s Snapshot) Device(name string) (device.Status, bool) {
	for _, d := range s.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return device.Status{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	sources []Source
	now     func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetNowFunc overrides the clock used to stamp snapshots.
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.now = fn
	t.mu.Unlock()
}

// AddSource registers a device to be included in snapshots.
func (t *Tracker) AddSource(s Source) {
	t.mu.Lock()
	t.sources = append(t.sources, s)
	t.mu.Unlock()
}

// Record counts a delivered button event.
// Called from runLoop for every event taken off the queue.
func (t *Tracker) Record(ev device.Event) {
	t.mu.Lock()
	if ev.Pressed {
		t.snap.Counts.Presses++
	} else {
		t.snap.Counts.Releases++
	}
	if ev.Synthetic {
		t.snap.Counts.Synthetic++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call and
// device statuses are collected after the tracker lock is released.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	sources := append([]Source(nil), t.sources...)
	now := t.now
	t.mu.RUnlock()

	s.Now = now()
	s.Devices = make([]device.Status, 0, len(sources))
	for _, src := range sources {
		s.Devices = append(s.Devices, src.Status())
	}
	sort.Slice(s.Devices, func(i, j int) bool { return s.Devices[i].Name < s.Devices[j].Name })
	return s
}
