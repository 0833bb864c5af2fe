package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string       `json:"event,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	Ready            bool         `json:"ready"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	StartTime        string       `json:"start_time"`
	Timestamp        string       `json:"timestamp"`
	LastFrame        string       `json:"last_frame,omitempty"`
	Camera           CameraJSON   `json:"camera"`
	Bowl             BowlJSON     `json:"bowl"`
	Animals          []AnimalJSON `json:"animals"`
	Eating           int          `json:"eating"`
	ActiveActivities int          `json:"active_activities"`
	MQTT             MQTTStatus   `json:"mqtt"`
	Counts           CountsJSON   `json:"event_counts"`
	Network          *NetworkJSON `json:"network,omitempty"`
	Config           ConfigJSON   `json:"config"`
}

// CameraJSON reports frame source health.
type CameraJSON struct {
	Connected  bool   `json:"connected"`
	Frames     uint64 `json:"frames"`
	Dropped    uint64 `json:"dropped"`
	Failures   uint64 `json:"failures"`
	Reconnects uint64 `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

// BowlJSON reports the bowl position cache.
type BowlJSON struct {
	Source         string        `json:"source"`
	HasPosition    bool          `json:"has_position"`
	Reliable       bool          `json:"reliable"`
	DetectionCount int           `json:"detection_count"`
	AgeSeconds     float64       `json:"age_seconds"`
	Position       *PositionJSON `json:"position,omitempty"`
}

// PositionJSON is a camera-frame position in metres.
type PositionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AnimalJSON is one tracked animal.
type AnimalJSON struct {
	ID           int     `json:"id"`
	State        string  `json:"state"`
	StartedAt    string  `json:"started_at,omitempty"`
	MeanDistance float64 `json:"mean_distance"`
	Samples      int     `json:"samples"`
	LastSeen     string  `json:"last_seen"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Starts     int `json:"starts"`
	Ends       int `json:"ends"`
	ForcedEnds int `json:"forced_ends"`
	Discarded  int `json:"discarded"`
	Evicted    int `json:"evicted"`
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
	BowlMarkerID     int     `json:"bowl_marker_id"`
	EnterThreshold   float64 `json:"enter_threshold"`
	ExitThreshold    float64 `json:"exit_threshold"`
	WindowSize       int     `json:"window_size"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	APIEnabled       bool    `json:"api_enabled"`
	StreamingEnabled bool    `json:"streaming_enabled"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	source := string(snap.BowlSource)
	if source == "" {
		source = "none"
	}

	inner := StatusInner{
		Ready:         snap.Camera.Connected,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		LastFrame:     formatTime(snap.LastFrame),
		Camera: CameraJSON{
			Connected:  snap.Camera.Connected,
			Frames:     snap.Camera.Frames,
			Dropped:    snap.Camera.Dropped,
			Failures:   snap.Camera.Failures,
			Reconnects: snap.Camera.Reconnects,
			LastError:  snap.Camera.LastError,
		},
		Bowl: BowlJSON{
			Source:         source,
			HasPosition:    snap.Bowl.HasPosition,
			Reliable:       snap.Bowl.Reliable,
			DetectionCount: snap.Bowl.DetectionCount,
			AgeSeconds:     snap.Bowl.Age.Seconds(),
		},
		Animals:          make([]AnimalJSON, 0, len(snap.Animals)),
		Eating:           snap.Eating(),
		ActiveActivities: snap.ActiveActivities,
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Starts:     snap.Counts.Starts,
			Ends:       snap.Counts.Ends,
			ForcedEnds: snap.Counts.ForcedEnds,
			Discarded:  snap.Counts.Discarded,
			Evicted:    snap.Counts.Evicted,
		},
		Config: ConfigJSON{
			BowlMarkerID:     snap.Config.BowlMarkerID,
			EnterThreshold:   snap.Config.EnterThreshold,
			ExitThreshold:    snap.Config.ExitThreshold,
			WindowSize:       snap.Config.WindowSize,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			APIEnabled:       snap.Config.APIEnabled,
			StreamingEnabled: snap.Config.StreamingEnabled,
		},
	}
	if snap.Bowl.HasPosition {
		p := snap.Bowl.Position
		inner.Bowl.Position = &PositionJSON{X: p.X, Y: p.Y, Z: p.Z}
	}
	for _, a := range snap.Animals {
		inner.Animals = append(inner.Animals, AnimalJSON{
			ID:           a.ID,
			State:        string(a.State),
			StartedAt:    formatTime(a.StartedAt),
			MeanDistance: a.MeanDistance,
			Samples:      a.Samples,
			LastSeen:     formatTime(a.LastSeen),
		})
	}
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
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
