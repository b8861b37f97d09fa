package safety_api

import (
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
)

type subjectView struct {
	ID                       uint64     `json:"id"`
	FullName                 string     `json:"fullName,omitempty"`
	Timezone                 string     `json:"timezone"`
	LastSeenAt               time.Time  `json:"lastSeenAt"`
	MonitoringEnabled        bool       `json:"monitoringEnabled"`
	InactivityThresholdHours int32      `json:"inactivityThresholdHours"`
	GracePeriodHours         int32      `json:"gracePeriodHours"`
	ReminderFrequencyHours   int32      `json:"reminderFrequencyHours"`
	QuietStart               string     `json:"quietStart,omitempty"`
	QuietEnd                 string     `json:"quietEnd,omitempty"`
	AlertStatus              string     `json:"alertStatus"`
	WarningSentAt            *time.Time `json:"warningSentAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

func toSubjectView(s *models.Subject) *subjectView {
	return &subjectView{
		ID:                       s.ID,
		FullName:                 derefString(s.FullName),
		Timezone:                 s.Timezone,
		LastSeenAt:               s.LastSeenAt,
		MonitoringEnabled:        s.MonitoringEnabled,
		InactivityThresholdHours: s.InactivityThresholdHours,
		GracePeriodHours:         s.GracePeriodHours,
		ReminderFrequencyHours:   s.ReminderFrequencyHours,
		QuietStart:               derefString(s.QuietStart),
		QuietEnd:                 derefString(s.QuietEnd),
		AlertStatus:              s.AlertStatus,
		WarningSentAt:            s.WarningSentAt,
		CreatedAt:                s.CreatedAt,
		UpdatedAt:                s.UpdatedAt,
	}
}

type checkInView struct {
	ID        uint64    `json:"id"`
	SubjectID uint64    `json:"subjectId"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func toCheckInView(ev *models.CheckInEvent) *checkInView {
	return &checkInView{ID: ev.ID, SubjectID: ev.SubjectID, Source: ev.Source, CreatedAt: ev.CreatedAt}
}

type alertView struct {
	ID        uint64    `json:"id"`
	SubjectID uint64    `json:"subjectId"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	SentAt    time.Time `json:"sentAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func toAlertView(r *models.AlertRecord) *alertView {
	return &alertView{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Kind:      r.Kind,
		Status:    r.Status,
		Message:   r.Message,
		SentAt:    r.SentAt,
		CreatedAt: r.CreatedAt,
	}
}

type contactView struct {
	ID          uint64    `json:"id"`
	SubjectID   uint64    `json:"subjectId"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toContactView(c *models.TrustedContact) *contactView {
	return &contactView{ID: c.ID, SubjectID: c.SubjectID, Name: c.Name, PhoneNumber: c.PhoneNumber, CreatedAt: c.CreatedAt}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
