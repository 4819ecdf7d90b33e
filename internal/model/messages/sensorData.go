package messages

import "time"

// SensorData holds one reading published by the external sensor feed for a
// single zone.
type SensorData struct {
	ZoneID      string    `json:"zone_id"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// RainState is the global rain flag published by the weather feed.
type RainState struct {
	Raining   bool      `json:"raining"`
	Timestamp time.Time `json:"timestamp"`
}
