package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/holdclick/internal/device"
	"github.com/sweeney/holdclick/internal/emulate"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Devices       []DeviceJSON `json:"devices"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses   int `json:"presses"`
	Releases  int `json:"releases"`
	Synthetic int `json:"synthetic"`
}

// DeviceJSON is the JSON representation of one device.
type DeviceJSON struct {
	Name      string         `json:"name"`
	Buttons   bool           `json:"buttons"`
	Emulation *EmulationJSON `json:"emulation,omitempty"`
	Posted    uint64         `json:"posted"`
	Dropped   uint64         `json:"dropped"`
	LastEvent *EventJSON     `json:"last_event,omitempty"`
}

// EmulationJSON is the JSON representation of a device's emulator.
type EmulationJSON struct {
	State     string    `json:"state"`
	Mode      string    `json:"mode"`
	Enabled   bool      `json:"enabled"`
	Disabled  bool      `json:"timer_unavailable,omitempty"`
	TimeoutMs int64     `json:"timeout_ms"`
	Button    int       `json:"button"`
	Threshold int       `json:"threshold"`
	Stats     StatsJSON `json:"stats"`
}

// StatsJSON is the JSON representation of emulation counters.
type StatsJSON struct {
	Holds         int `json:"holds"`
	Promotions    int `json:"promotions"`
	EarlyReleases int `json:"early_releases"`
	MotionCancels int `json:"motion_cancels"`
	ButtonCancels int `json:"button_cancels"`
}

// EventJSON is the JSON representation of the last delivered event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Button    int    `json:"button"`
	Action    string `json:"action"`
	Synthetic bool   `json:"synthetic"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
}

// BuildDevice converts a device status to its JSON form.
func BuildDevice(st device.Status) DeviceJSON {
	d := DeviceJSON{
		Name:    st.Name,
		Buttons: st.Buttons,
		Posted:  st.Posted,
		Dropped: st.Dropped,
	}
	if st.Emulation != nil {
		d.Emulation = buildEmulation(*st.Emulation)
	}
	if ev := st.LastEvent; ev != nil {
		action := "RELEASE"
		if ev.Pressed {
			action = "PRESS"
		}
		d.LastEvent = &EventJSON{
			Timestamp: ev.Time.UTC().Format(time.RFC3339),
			Button:    int(ev.Button),
			Action:    action,
			Synthetic: ev.Synthetic,
		}
	}
	return d
}

func buildEmulation(s emulate.Snapshot) *EmulationJSON {
	return &EmulationJSON{
		State:     string(s.State),
		Mode:      string(s.Mode),
		Enabled:   s.Config.Enabled,
		Disabled:  s.Disabled,
		TimeoutMs: s.Config.Timeout.Milliseconds(),
		Button:    int(s.Config.Button),
		Threshold: s.Config.Threshold,
		Stats: StatsJSON{
			Holds:         s.Stats.Holds,
			Promotions:    s.Stats.Promotions,
			EarlyReleases: s.Stats.EarlyReleases,
			MotionCancels: s.Stats.MotionCancels,
			ButtonCancels: s.Stats.ButtonCancels,
		},
	}
}

func buildInner(snap Snapshot) StatusInner {
	devices := make([]DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, BuildDevice(d))
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:   snap.Counts.Presses,
			Releases:  snap.Counts.Releases,
			Synthetic: snap.Counts.Synthetic,
		},
		Devices: devices,
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
