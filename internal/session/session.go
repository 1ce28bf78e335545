package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tharindu1527/sample-doc-ai/internal/capture"
	"github.com/Tharindu1527/sample-doc-ai/internal/protocol"
	"github.com/Tharindu1527/sample-doc-ai/internal/stream"
	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

// Session is the single owner of conversation state. Every other component
// reads and writes that state only through the methods here. Transport and
// capture events arrive from their own goroutines, so all state lives under
// one mutex.
type Session struct {
	conn Conn
	rec  Recorder
	sink Sink
	arch Archiver
	log  *logging.Logger

	mu              sync.Mutex
	recording       bool
	processing      bool
	turns           []Turn
	intent          string
	entities        map[string]string
	urgency         protocol.UrgencyLevel
	suggestions     []string
	lastAction      *protocol.AppointmentAction
	err             string
	captureDisabled string
}

// Deps are the injected collaborators. Conn, Recorder and Sink are required;
// Archiver and Logger may be nil.
type Deps struct {
	Conn     Conn
	Recorder Recorder
	Sink     Sink
	Archiver Archiver
	Logger   *logging.Logger
}

func New(d Deps) *Session {
	log := d.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Session{
		conn: d.Conn,
		rec:  d.Recorder,
		sink: d.Sink,
		arch: d.Archiver,
		log:  log.WithComponent("session"),
	}
}

// HandleResponse applies one decoded backend message to the session. The
// processing flag is always false by the time this returns.
func (s *Session) HandleResponse(resp *protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.processing = false }()

	if resp.Error != "" {
		// An explicit backend error preempts everything else in the message.
		s.err = resp.Error
		s.appendLocked(Turn{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("Sorry, something went wrong: %s", resp.Error),
		})
		s.log.Warn("backend error", "error", resp.Error)
		return
	}
	s.err = ""

	if resp.Status == "conversation_reset" {
		s.log.Info("backend confirmed conversation reset")
	}

	if resp.Transcript != "" {
		s.appendLocked(Turn{
			Role:        RoleUser,
			Content:     resp.Transcript,
			AudioOrigin: true,
		})
	}

	if ai := resp.AIResponse; ai != nil {
		entities := make(map[string]string, len(ai.ExtractedInfo))
		for k, v := range ai.ExtractedInfo {
			entities[k] = v
		}
		s.appendLocked(Turn{
			Role:        RoleAssistant,
			Content:     ai.Text,
			AudioOrigin: resp.HasAudio(),
			Intent:      ai.Intent,
			Entities:    entities,
		})
		s.intent = ai.Intent
		// Full replace, never a merge: a later extraction supersedes the
		// previous one entirely.
		s.entities = entities
	}

	if resp.HasAudio() {
		audio, err := resp.AudioBytes()
		if err != nil {
			s.log.Warn("dropping undecodable audio payload", "error", err)
		} else if err := s.sink.Play(audio); err != nil {
			s.log.Warn("playback failed", "error", err)
		}
	}

	if resp.AppointmentAction != nil {
		s.lastAction = resp.AppointmentAction
	}
	if resp.Suggestions != nil {
		s.suggestions = resp.Suggestions
	}
	if resp.Urgency != "" {
		s.urgency = resp.Urgency
	}
}

// HandleProtocolError records an undecodable inbound message. Non-fatal, but
// the processing indicator must not be left hanging on it.
func (s *Session) HandleProtocolError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.log.Warn("protocol error", "error", err)
}

// HandleStatusChange reacts to transport transitions. Losing the connection
// clears the processing flag so the UI never spins forever on a reply that
// can no longer arrive.
func (s *Session) HandleStatusChange(st stream.Status, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case stream.StatusError:
		s.processing = false
		if cause != nil {
			s.err = cause.Error()
		} else {
			s.err = "connection error"
		}
	case stream.StatusDisconnected:
		s.processing = false
	case stream.StatusConnected:
		s.err = ""
	}
	s.log.Info("connection status", "status", st.String())
}

// ToggleRecording is the single control the surrounding surface needs. Not
// recording: start capturing. Recording: finalize the utterance and send it.
func (s *Session) ToggleRecording() error {
	if s.rec.Recording() {
		return s.finishUtterance()
	}
	return s.startUtterance()
}

func (s *Session) startUtterance() error {
	err := s.rec.Start()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.recording = true
		s.captureDisabled = ""
		return nil
	case errors.Is(err, capture.ErrPermissionDenied):
		s.captureDisabled = "Microphone access is blocked. Allow it in your system settings to use voice."
	case errors.Is(err, capture.ErrDeviceUnavailable):
		s.captureDisabled = "No microphone was found on this device."
	default:
		s.err = err.Error()
	}
	s.recording = false
	s.log.Warn("capture start failed", "error", err)
	return err
}

func (s *Session) finishUtterance() error {
	payload, err := s.rec.Stop()
	s.mu.Lock()
	s.recording = false
	if err != nil {
		s.err = err.Error()
		s.mu.Unlock()
		s.log.Warn("capture stop failed", "error", err)
		return err
	}
	if len(payload) == 0 {
		s.mu.Unlock()
		s.log.Info("empty utterance, nothing to send")
		return nil
	}
	s.processing = true
	s.mu.Unlock()

	if s.arch != nil {
		go func(data []byte) {
			if key, aerr := s.arch.ArchiveUtterance(data); aerr != nil {
				s.log.Warn("utterance archive failed", "error", aerr)
			} else {
				s.log.Info("utterance archived", "key", key)
			}
		}(payload)
	}

	if err := s.conn.Send(protocol.AudioRequest(payload)); err != nil {
		s.mu.Lock()
		s.processing = false
		content := fmt.Sprintf("I couldn't send your message: %v. Please try again.", err)
		if errors.Is(err, stream.ErrNotConnected) {
			content = "I'm not connected right now. Reset the connection and try again."
		}
		s.appendLocked(Turn{Role: RoleAssistant, Content: content})
		s.mu.Unlock()
		s.log.Warn("audio send failed", "error", err)
		return err
	}
	s.log.Info("utterance sent", "bytes", len(payload))
	return nil
}

// ClearMessages empties the conversation without touching the transport. The
// backend is asked to drop its context too, best-effort.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.turns = nil
	s.intent = ""
	s.entities = nil
	s.urgency = ""
	s.suggestions = nil
	s.lastAction = nil
	s.err = ""
	s.mu.Unlock()

	if err := s.conn.Send(protocol.ResetRequest()); err != nil {
		s.log.Warn("context reset not delivered", "error", err)
	}
}

// Connect opens the transport.
func (s *Session) Connect() error { return s.conn.Connect() }

// ResetConnection drops the transport and schedules a fresh dial. The stale
// processing indicator and error go with it.
func (s *Session) ResetConnection() {
	s.mu.Lock()
	s.processing = false
	s.err = ""
	s.mu.Unlock()
	s.conn.Reset()
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Connection:      s.conn.Status(),
		Recording:       s.recording,
		Processing:      s.processing,
		Turns:           make([]Turn, len(s.turns)),
		Intent:          s.intent,
		Urgency:         s.urgency,
		LastAction:      s.lastAction,
		Err:             s.err,
		CaptureDisabled: s.captureDisabled,
	}
	copy(st.Turns, s.turns)
	if s.entities != nil {
		st.Entities = make(map[string]string, len(s.entities))
		for k, v := range s.entities {
			st.Entities[k] = v
		}
	}
	if s.suggestions != nil {
		st.Suggestions = append([]string(nil), s.suggestions...)
	}
	return st
}

// Close releases the microphone and the transport. Safe to call once at
// teardown; a live recording is discarded.
func (s *Session) Close() {
	if s.rec.Recording() {
		if _, err := s.rec.Stop(); err != nil {
			s.log.Warn("capture stop at close", "error", err)
		}
	}
	s.mu.Lock()
	s.recording = false
	s.processing = false
	s.mu.Unlock()
	s.conn.Close()
}

func (s *Session) appendLocked(t Turn) {
	t.ID = uuid.NewString()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	s.turns = append(s.turns, t)
}
