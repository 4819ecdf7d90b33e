package messages

import "time"

// NotificationType enumerates the domain events the engine emits toward the
// external notification sink. Delivery and formatting are the sink's concern.
type NotificationType string

const (
	NotifyScheduleFired   NotificationType = "scheduleFired"
	NotifyScheduleSkipped NotificationType = "scheduleSkipped"
	NotifyZoneError       NotificationType = "zoneError"
	NotifyEmergencyStop   NotificationType = "emergencyStop"
)

// Notification is the payload handed to the notification sink.
type Notification struct {
	Type       NotificationType `json:"type"`
	ScheduleID string           `json:"schedule_id,omitempty"`
	EventID    string           `json:"event_id,omitempty"`
	ZoneID     string           `json:"zone_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}
