// Package protocol defines the websocket messages exchanged with the
// candidate's browser, which hosts the speech recognizer and synthesizer.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// MessageType identifies the type of websocket message.
type MessageType string

const (
	// Server → host
	TypeHello            MessageType = "hello"             // Connection greeting with capture constraints
	TypeRecognize        MessageType = "recognize"         // Start one recognition pass
	TypeAbortRecognition MessageType = "abort_recognition" // Abort a recognition pass
	TypeSpeak            MessageType = "speak"             // Speak an utterance
	TypeCancelSpeech     MessageType = "cancel_speech"     // Stop all playback

	// Host → server
	TypeCapabilities MessageType = "capabilities" // Engines the host supports
	TypeResult       MessageType = "result"       // Final recognition result
	TypeSpeechEnd    MessageType = "speech_end"   // Utterance playback ended
	TypeError        MessageType = "error"        // Recognition or synthesis error

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for every websocket message. ID correlates a
// request with its reply.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, id string, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Host
// =============================================================================

// HelloData greets a newly connected host.
type HelloData struct {
	ConnectionID string            `json:"connection_id"`
	Locale       string            `json:"lang"`
	Constraints  media.Constraints `json:"constraints"`
}

// RecognizeData starts a recognition pass.
type RecognizeData = speechio.RecognizeOptions

// SpeakData is the utterance to speak.
type SpeakData = speechio.Utterance

// =============================================================================
// Host → Server
// =============================================================================

// CapabilitiesData reports which speech engines the host has.
type CapabilitiesData struct {
	Recognition bool   `json:"recognition"`
	Synthesis   bool   `json:"synthesis"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// ResultData is a final recognition result.
type ResultData struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	CapturedAt int64   `json:"captured_at,omitempty"` // Unix milliseconds
}

// Time returns when the audio was captured, or now if the host did not say.
func (r ResultData) Time() time.Time {
	if r.CapturedAt == 0 {
		return time.Now()
	}
	return time.UnixMilli(r.CapturedAt)
}

// ErrorData is a host engine error. Code uses the host's recognition
// error vocabulary (no-speech, network, not-allowed, ...).
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// PingData is a health check.
type PingData struct {
	Timestamp int64 `json:"ts"`
}

// PongData answers a ping.
type PongData struct {
	PingTS    int64 `json:"ping_ts"`
	PongTS    int64 `json:"pong_ts"`
	LatencyMs int64 `json:"latency_ms"`
}
