package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind discriminates the payload carried by a Message.
type MessageKind string

const (
	KindChat       MessageKind = "chat"
	KindProgress   MessageKind = "progress"
	KindNewsletter MessageKind = "newsletter"
	KindAlert      MessageKind = "alert"
	KindSchedule   MessageKind = "schedule"
	KindNotice     MessageKind = "notice"
)

// Message is the durable envelope for everything delivered to clients. Seq is
// assigned by the delivery broker and is strictly increasing per stream.
// Exactly one payload field matching Kind is set.
type Message struct {
	ID       string      `json:"id"`
	StreamID string      `json:"streamId"`
	Seq      int64       `json:"seq"`
	Kind     MessageKind `json:"type"`
	SentAt   time.Time   `json:"timestamp"`

	Chat       *ChatPayload     `json:"chat,omitempty"`
	Progress   *ProgressPayload `json:"progress,omitempty"`
	Newsletter *Newsletter      `json:"newsletter,omitempty"`
	Alert      *NewsAlert       `json:"alert,omitempty"`
	Schedule   *SchedulePayload `json:"schedule,omitempty"`
	Notice     *NoticePayload   `json:"notice,omitempty"`
}

// ChatPayload carries free-form user text attached to a stream.
type ChatPayload struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ProgressPayload reports pipeline stage completion.
type ProgressPayload struct {
	ExecutionID     string `json:"executionId"`
	Stage           Stage  `json:"stage"`
	SourcesFound    int    `json:"sourcesFound"`
	SourcesAnalyzed int    `json:"sourcesAnalyzed"`
}

// SchedulePayload confirms a schedule change.
type SchedulePayload struct {
	Spec    ScheduleSpec `json:"schedule"`
	NextRun time.Time    `json:"nextRun"`
}

// NoticePayload carries operational notifications, e.g. auto-pause.
type NoticePayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// NewMessage builds an unsequenced envelope; the broker assigns Seq.
func NewMessage(streamID string, kind MessageKind, at time.Time) Message {
	return Message{
		ID:       uuid.NewString(),
		StreamID: streamID,
		Kind:     kind,
		SentAt:   at,
	}
}
