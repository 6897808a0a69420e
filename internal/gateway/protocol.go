package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StreamPulse/internal/domain"
)

// Client-to-core event types.
const (
	evAuthenticate    = "authenticate"
	evSendMessage     = "send-message"
	evCreateStream    = "create-stream"
	evUpdateSchedule  = "update-schedule"
	evTriggerResearch = "trigger-research"
	evSwitchFocus     = "switch-focus"
	evMarkAlertRead   = "mark-alert-read"
	evReplay          = "replay"
)

// Core-to-client event types.
const (
	evStreamsUpdated      = "streams-updated"
	evStreamCreated       = "stream-created"
	evStreamUpdated       = "stream-updated"
	evScheduleUpdated     = "schedule-updated"
	evResearchTriggered   = "research-triggered"
	evNewsUpdateTriggered = "news-update-triggered"
	evMessage             = "message"
	evAuthError           = "auth-error"
	evError               = "error"
)

// clientEnvelope is the inbound frame: a discriminator plus a typed payload.
type clientEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// serverEnvelope is the outbound frame.
type serverEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type sendMessagePayload struct {
	StreamID string `json:"streamId"`
	Content  string `json:"content"`
}

type schedulePayload struct {
	Frequency string  `json:"frequency"`
	DayOfWeek *string `json:"dayOfWeek,omitempty"`
	Time      string  `json:"time"`
	Timezone  string  `json:"timezone,omitempty"`
}

type createStreamPayload struct {
	Name      string                 `json:"name"`
	FocusType string                 `json:"focusType"`
	Schedule  schedulePayload        `json:"schedule"`
	News      *domain.NewsConfig     `json:"newsConfig,omitempty"`
	Research  *domain.ResearchConfig `json:"researchConfig,omitempty"`
}

type updateSchedulePayload struct {
	StreamID string          `json:"streamId"`
	Schedule schedulePayload `json:"schedule"`
}

type triggerPayload struct {
	StreamID string `json:"streamId"`
}

type switchFocusPayload struct {
	StreamID  string `json:"streamId"`
	FocusType string `json:"focusType"`
}

type markAlertReadPayload struct {
	AlertID string `json:"alertId"`
}

type replayPayload struct {
	StreamID string `json:"streamId"`
	SinceSeq int64  `json:"sinceSeq"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// toScheduleSpec converts the wire shape into the domain value and validates
// it, including the day-of-week requirement for weekly frequencies.
func (p schedulePayload) toScheduleSpec() (domain.ScheduleSpec, error) {
	spec := domain.ScheduleSpec{
		Frequency: domain.Frequency(p.Frequency),
		TimeOfDay: p.Time,
		Timezone:  p.Timezone,
	}

	weekly := spec.Frequency == domain.FrequencyWeekly || spec.Frequency == domain.FrequencyBiWeekly
	if p.DayOfWeek != nil {
		day, ok := weekdays[strings.ToLower(*p.DayOfWeek)]
		if !ok {
			return domain.ScheduleSpec{}, fmt.Errorf("unknown day of week %q", *p.DayOfWeek)
		}
		spec.DayOfWeek = day
	} else if weekly {
		return domain.ScheduleSpec{}, fmt.Errorf("day of week is required for %s schedules", spec.Frequency)
	}

	if err := spec.Validate(); err != nil {
		return domain.ScheduleSpec{}, err
	}
	return spec, nil
}
