package models

import "time"

// Статусы эскалации. Продвигаются только ok -> warning_sent -> alert_sent,
// сброс в ok делает только check-in.
const (
	AlertStatusOK          = "ok"
	AlertStatusWarningSent = "warning_sent"
	AlertStatusAlertSent   = "alert_sent"
)

const (
	AlertKindWarning  = "warning"
	AlertKindSMSAlert = "sms_alert"
)

const (
	AlertDeliveryPending = "pending"
	AlertDeliverySent    = "sent"
	AlertDeliveryFailed  = "failed"
)

const (
	CheckInSourceAppOpen      = "app_open"
	CheckInSourceManual       = "manual"
	CheckInSourceNotification = "notification"
)

type Subject struct {
	ID                uint64
	FullName          *string
	Timezone          string
	LastSeenAt        time.Time
	MonitoringEnabled bool

	InactivityThresholdHours int32
	GracePeriodHours         int32
	ReminderFrequencyHours   int32
	QuietStart               *string // "HH:MM" по локальному времени subject-а
	QuietEnd                 *string

	AlertStatus    string
	WarningSentAt  *time.Time // не-nil строго при AlertStatus = warning_sent
	ReminderBucket int32

	PushToken *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InactivityHours — целые часы с последнего check-in на момент now.
func (s *Subject) InactivityHours(now time.Time) int64 {
	return int64(now.Sub(s.LastSeenAt).Hours())
}

// DisplayName — имя для SMS третьим лицам, с generic fallback.
func (s *Subject) DisplayName() string {
	if s.FullName != nil && *s.FullName != "" {
		return *s.FullName
	}
	return "A SafeCheck user"
}

type TrustedContact struct {
	ID          uint64
	SubjectID   uint64
	Name        string
	PhoneNumber string // E.164
	CreatedAt   time.Time
}

type CheckInEvent struct {
	ID        uint64
	SubjectID uint64
	Source    string
	CreatedAt time.Time
}

type AlertRecord struct {
	ID        uint64
	SubjectID uint64
	Kind      string
	Status    string
	Message   string
	SentAt    time.Time
	CreatedAt time.Time
}

type SubjectCreateInput struct {
	FullName                 *string
	Timezone                 string
	InactivityThresholdHours int32
	GracePeriodHours         int32
	ReminderFrequencyHours   int32
	QuietStart               *string
	QuietEnd                 *string
	PushToken                *string
}
