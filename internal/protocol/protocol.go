package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Request is a client-to-backend message. Types: "audio", "reset".
type Request struct {
	Type string `json:"type"`
	// audio: one complete utterance, base64-encoded. Never chunked.
	Audio string `json:"audio,omitempty"`
}

// AudioRequest wraps a finished recording for transmission.
func AudioRequest(payload []byte) Request {
	return Request{Type: "audio", Audio: base64.StdEncoding.EncodeToString(payload)}
}

// ResetRequest asks the backend to drop its conversation context.
func ResetRequest() Request {
	return Request{Type: "reset"}
}

// AIResponse is the assistant reply plus the intent/entity extraction that
// produced it.
type AIResponse struct {
	Text          string            `json:"text"`
	Intent        string            `json:"intent"`
	ExtractedInfo map[string]string `json:"extracted_info"`
}

// AppointmentAction is a side-effect summary from the backend. The client
// surfaces it to the UI untouched.
type AppointmentAction struct {
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	Appointment    json.RawMessage `json:"appointment,omitempty"`
	AvailableSlots []string        `json:"available_slots,omitempty"`
	Missing        []string        `json:"missing,omitempty"`
}

// UrgencyLevel gates UI emphasis. Ordered low < medium < high < emergency.
type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "low"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyEmergency UrgencyLevel = "emergency"
)

// Severity returns the position of u in the urgency ordering. Unknown values
// rank as low.
func (u UrgencyLevel) Severity() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyEmergency:
		return 3
	default:
		return 0
	}
}

// Response is one backend message per request cycle. Every field except
// Timestamp is optional; a response carrying Error must still decode.
type Response struct {
	Transcript        string             `json:"transcript,omitempty"`
	AIResponse        *AIResponse        `json:"ai_response,omitempty"`
	AudioResponse     string             `json:"audio_response,omitempty"`
	AppointmentAction *AppointmentAction `json:"appointment_action,omitempty"`
	Suggestions       []string           `json:"suggestions,omitempty"`
	Urgency           UrgencyLevel       `json:"urgency,omitempty"`
	Timestamp         string             `json:"timestamp"`
	Error             string             `json:"error,omitempty"`
	// Status acknowledges control requests, e.g. "conversation_reset".
	Status string `json:"status,omitempty"`
}

// HasAudio reports whether the response carries synthesized speech.
func (r *Response) HasAudio() bool { return r.AudioResponse != "" }

// AudioBytes decodes the synthesized-speech payload.
func (r *Response) AudioBytes() ([]byte, error) {
	if r.AudioResponse == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(r.AudioResponse)
	if err != nil {
		return nil, fmt.Errorf("decode audio_response: %w", err)
	}
	return b, nil
}

// EncodeRequest serializes an outbound request.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Type, err)
	}
	return data, nil
}

// DecodeResponse parses an inbound message. Partially populated responses are
// fine; malformed JSON is a protocol error.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
