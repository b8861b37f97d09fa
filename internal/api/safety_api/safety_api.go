package safety_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/services/subjects"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// SafetyAPI — JSON API для мобильного клиента. Аутентификация
// упрощённая: клиент шлёт свой subject id в X-Subject-ID, доступ
// только к собственным данным.
type SafetyAPI struct {
	svc *subjects.Service
}

func New(svc *subjects.Service) *SafetyAPI {
	return &SafetyAPI{svc: svc}
}

func (a *SafetyAPI) Routes(r chi.Router) {
	r.Post("/v1/subjects", a.createSubject)
	r.Post("/v1/check-in", a.checkIn)
	r.Get("/v1/subjects/{id}", a.getSubject)
	r.Get("/v1/subjects/{id}/alerts", a.listAlerts)
	r.Get("/v1/subjects/{id}/check-ins", a.listCheckIns)
	r.Get("/v1/subjects/{id}/contacts", a.listContacts)
	r.Post("/v1/subjects/{id}/contacts", a.addContact)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, pgsafety.ErrNotFound) {
		writeError(w, http.StatusNotFound, "subject not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// subjectID достаёт аутентифицированный subject id из заголовка.
func subjectID(r *http.Request) (uint64, bool) {
	raw := r.Header.Get("X-Subject-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// pathID — id из URL, обязан совпадать с аутентифицированным.
func (a *SafetyAPI) authorizedPathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	authID, ok := subjectID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Subject-ID header is required")
		return 0, false
	}
	pathID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return 0, false
	}
	if pathID != authID {
		writeError(w, http.StatusForbidden, "access denied")
		return 0, false
	}
	return pathID, true
}

type createSubjectRequest struct {
	FullName                 *string `json:"fullName,omitempty"`
	Timezone                 string  `json:"timezone"`
	InactivityThresholdHours int32   `json:"inactivityThresholdHours"`
	GracePeriodHours         int32   `json:"gracePeriodHours"`
	ReminderFrequencyHours   int32   `json:"reminderFrequencyHours"`
	QuietStart               *string `json:"quietStart,omitempty"`
	QuietEnd                 *string `json:"quietEnd,omitempty"`
	PushToken                *string `json:"pushToken,omitempty"`
}

func (a *SafetyAPI) createSubject(w http.ResponseWriter, r *http.Request) {
	var req createSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	sub, err := a.svc.CreateSubject(r.Context(), models.SubjectCreateInput{
		FullName:                 req.FullName,
		Timezone:                 req.Timezone,
		InactivityThresholdHours: req.InactivityThresholdHours,
		GracePeriodHours:         req.GracePeriodHours,
		ReminderFrequencyHours:   req.ReminderFrequencyHours,
		QuietStart:               req.QuietStart,
		QuietEnd:                 req.QuietEnd,
		PushToken:                req.PushToken,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toSubjectView(sub))
}

type checkInRequest struct {
	Source string `json:"source,omitempty"`
}

type checkInResponse struct {
	CheckedInAt time.Time    `json:"checked_in_at"`
	CheckIn     *checkInView `json:"check_in"`
}

func (a *SafetyAPI) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Subject-ID header is required")
		return
	}

	var req checkInRequest
	if r.Body != nil {
		// Тело опционально: старые клиенты шлют пустой POST.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ev, err := a.svc.CheckIn(r.Context(), id, req.Source)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse{
		CheckedInAt: ev.CreatedAt,
		CheckIn:     toCheckInView(ev),
	})
}

func (a *SafetyAPI) getSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizedPathID(w, r)
	if !ok {
		return
	}
	sub, err := a.svc.GetSubject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubjectView(sub))
}

func limitOffset(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func (a *SafetyAPI) listAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizedPathID(w, r)
	if !ok {
		return
	}
	limit, offset := limitOffset(r)
	recs, err := a.svc.ListAlerts(r.Context(), id, limit, offset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]*alertView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAlertView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (a *SafetyAPI) listCheckIns(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizedPathID(w, r)
	if !ok {
		return
	}
	limit, offset := limitOffset(r)
	evs, err := a.svc.ListCheckIns(r.Context(), id, limit, offset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]*checkInView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toCheckInView(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkIns": out})
}

type addContactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

func (a *SafetyAPI) addContact(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizedPathID(w, r)
	if !ok {
		return
	}
	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	c, err := a.svc.AddContact(r.Context(), id, req.Name, req.PhoneNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toContactView(c))
}

func (a *SafetyAPI) listContacts(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizedPathID(w, r)
	if !ok {
		return
	}
	cs, err := a.svc.ListContacts(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]*contactView, 0, len(cs))
	for _, c := range cs {
		out = append(out, toContactView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": out})
}
