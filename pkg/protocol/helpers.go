package protocol

import (
	"time"

	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates the greeting sent to a newly connected host.
func NewHelloMessage(connectionID, locale string, constraints media.Constraints) (*Message, error) {
	return NewMessage(TypeHello, "", HelloData{
		ConnectionID: connectionID,
		Locale:       locale,
		Constraints:  constraints,
	})
}

// NewRecognizeMessage creates a recognition request.
func NewRecognizeMessage(id string, opts speechio.RecognizeOptions) (*Message, error) {
	return NewMessage(TypeRecognize, id, opts)
}

// NewAbortRecognitionMessage aborts the recognition request id.
func NewAbortRecognitionMessage(id string) (*Message, error) {
	return NewMessage(TypeAbortRecognition, id, nil)
}

// NewSpeakMessage creates a speak request.
func NewSpeakMessage(id string, u speechio.Utterance) (*Message, error) {
	return NewMessage(TypeSpeak, id, u)
}

// NewCancelSpeechMessage stops all playback on the host.
func NewCancelSpeechMessage() (*Message, error) {
	return NewMessage(TypeCancelSpeech, "", nil)
}

// NewCapabilitiesMessage reports the host's engines.
func NewCapabilitiesMessage(recognition, synthesis bool, userAgent string) (*Message, error) {
	return NewMessage(TypeCapabilities, "", CapabilitiesData{
		Recognition: recognition,
		Synthesis:   synthesis,
		UserAgent:   userAgent,
	})
}

// NewResultMessage answers recognition request id.
func NewResultMessage(id, text string, confidence float64, capturedAt time.Time) (*Message, error) {
	return NewMessage(TypeResult, id, ResultData{
		Text:       text,
		Confidence: confidence,
		CapturedAt: capturedAt.UnixMilli(),
	})
}

// NewSpeechEndMessage reports that utterance id finished playing.
func NewSpeechEndMessage(id string) (*Message, error) {
	return NewMessage(TypeSpeechEnd, id, nil)
}

// NewErrorMessage reports a failure of request id.
func NewErrorMessage(id, code, message string) (*Message, error) {
	return NewMessage(TypeError, id, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message.
func NewPingMessage() (*Message, error) {
	return NewMessage(TypePing, "", PingData{Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message.
func NewPongMessage(pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, "", PongData{
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHelloData extracts hello data from a message.
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRecognizeData extracts recognition options from a message.
func (m *Message) GetRecognizeData() (*RecognizeData, error) {
	var data RecognizeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakData extracts the utterance from a message.
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCapabilitiesData extracts capabilities from a message.
func (m *Message) GetCapabilitiesData() (*CapabilitiesData, error) {
	var data CapabilitiesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResultData extracts a recognition result from a message.
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message.
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
