package protocol

import (
	"testing"
	"time"

	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/speechio"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		id      string
		data    any
		wantErr bool
	}{
		{
			name:    "recognize message",
			msgType: TypeRecognize,
			id:      "req-1",
			data:    speechio.RecognizeOptions{Locale: "en-US"},
		},
		{
			name:    "error message",
			msgType: TypeError,
			id:      "req-2",
			data:    ErrorData{Code: "no-speech"},
		},
		{
			name:    "nil data",
			msgType: TypeCancelSpeech,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeSpeak,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.id, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.ID != tt.id {
				t.Errorf("NewMessage() id = %q, want %q", msg.ID, tt.id)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	if _, err := ParseMessage([]byte(`{"id":"x"}`)); err == nil {
		t.Error("ParseMessage() without type should fail")
	}
	if _, err := ParseMessage([]byte(`not json`)); err == nil {
		t.Error("ParseMessage() with garbage should fail")
	}

	msg, err := ParseMessage([]byte(`{"type":"speech_end","id":"u-1"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Type != TypeSpeechEnd || msg.ID != "u-1" {
		t.Errorf("parsed = %+v", msg)
	}
}

func TestHelloMessage(t *testing.T) {
	msg, err := NewHelloMessage("conn-1", "en-US", media.DefaultConstraints())
	if err != nil {
		t.Fatalf("NewHelloMessage() error = %v", err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	hello, err := parsed.GetHelloData()
	if err != nil {
		t.Fatalf("GetHelloData() error = %v", err)
	}

	if hello.ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %q", hello.ConnectionID)
	}
	if hello.Constraints.Video.Width != 640 || hello.Constraints.Video.Height != 480 {
		t.Errorf("Video = %+v, want 640x480", hello.Constraints.Video)
	}
	if !hello.Constraints.Audio.EchoCancellation {
		t.Error("EchoCancellation should be requested")
	}
	if hello.Constraints.Audio.NoiseSuppression || hello.Constraints.Audio.AutoGainControl {
		t.Error("noise suppression and gain control should be off")
	}
}

func TestResultMessage(t *testing.T) {
	captured := time.UnixMilli(1_700_000_000_123)

	msg, err := NewResultMessage("req-1", "I have five years of Go", 0.92, captured)
	if err != nil {
		t.Fatalf("NewResultMessage() error = %v", err)
	}

	res, err := msg.GetResultData()
	if err != nil {
		t.Fatalf("GetResultData() error = %v", err)
	}
	if res.Text != "I have five years of Go" {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.Time().Equal(captured) {
		t.Errorf("Time() = %v, want %v", res.Time(), captured)
	}
}

func TestResultData_TimeDefaultsToNow(t *testing.T) {
	before := time.Now()
	got := ResultData{Text: "hi"}.Time()
	if got.Before(before) {
		t.Errorf("Time() = %v, want >= %v", got, before)
	}
}

func TestSpeakMessage(t *testing.T) {
	u := speechio.Utterance{Text: "Hello", Locale: "en-US", Rate: 0.9, Pitch: 1, Volume: 1}

	msg, err := NewSpeakMessage("u-1", u)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}
	got, err := msg.GetSpeakData()
	if err != nil {
		t.Fatalf("GetSpeakData() error = %v", err)
	}
	if *got != u {
		t.Errorf("GetSpeakData() = %+v, want %+v", *got, u)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("req-3", "network", "offline")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	data, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if data.Code != "network" || data.Message != "offline" {
		t.Errorf("GetErrorData() = %+v", data)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage()
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	ping, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage(ping.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	var pong PongData
	if err := pongMsg.ParseData(&pong); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pong.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pong.LatencyMs)
	}
}
