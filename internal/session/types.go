package session

import (
	"time"

	"github.com/Tharindu1527/sample-doc-ai/internal/protocol"
	"github.com/Tharindu1527/sample-doc-ai/internal/stream"
)

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation log. Immutable once appended,
// except that trailing metadata (the audio flag) may be patched onto the
// last turn when it arrives after the text.
type Turn struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	Timestamp   time.Time         `json:"timestamp"`
	AudioOrigin bool              `json:"audio_origin,omitempty"`
	Intent      string            `json:"intent,omitempty"`
	Entities    map[string]string `json:"entities,omitempty"`
}

// Conn is the streaming transport the session talks through.
type Conn interface {
	Connect() error
	Send(protocol.Request) error
	Reset()
	Status() stream.Status
	Close()
}

// Recorder captures one utterance at a time.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
	Recording() bool
}

// Sink plays synthesized speech. Implementations must not let playback
// failures escape to the caller in a way that breaks the conversation.
type Sink interface {
	Play(audio []byte) error
}

// Archiver stores finished utterances outside the session. Best-effort.
type Archiver interface {
	ArchiveUtterance(payload []byte) (string, error)
}

// State is a point-in-time copy of the session, safe to hand to callers.
type State struct {
	Connection  stream.Status               `json:"-"`
	Recording   bool                        `json:"recording"`
	Processing  bool                        `json:"processing"`
	Turns       []Turn                      `json:"turns"`
	Intent      string                      `json:"intent,omitempty"`
	Entities    map[string]string           `json:"entities,omitempty"`
	Urgency     protocol.UrgencyLevel       `json:"urgency,omitempty"`
	Suggestions []string                    `json:"suggestions,omitempty"`
	LastAction  *protocol.AppointmentAction `json:"last_action,omitempty"`
	Err         string                      `json:"error,omitempty"`
	// CaptureDisabled explains why the record toggle is unusable, set when
	// the microphone is denied or absent. Empty means capture is available.
	CaptureDisabled string `json:"capture_disabled,omitempty"`
}

// ConnectionStatus renders the transport state for JSON consumers.
func (s State) ConnectionStatus() string { return s.Connection.String() }
