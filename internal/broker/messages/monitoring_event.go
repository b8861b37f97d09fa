package messages

import "time"

const (
	MonitoringEventCheckIn  = "check_in"
	MonitoringEventReminder = "reminder"
	MonitoringEventWarning  = "warning"
	MonitoringEventSMSAlert = "sms_alert"
)

// MonitoringEvent — событие в safety.events: worker публикует исходы
// проходов, api по ним освежает кэш subject-ов.
type MonitoringEvent struct {
	SubjectID  uint64    `json:"subject_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
}
