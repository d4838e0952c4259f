package speechio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/candidly/pkg/audioio"
)

func newTestAdapter(t *testing.T, rec Recognizer, synth Synthesizer, mic *audioio.Microphone) *Adapter {
	t.Helper()
	a, err := New(rec, synth, mic, WithSettleDelay(30*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error without synthesizer")
	}
	if _, err := New(nil, NewMockSynthesizer(), nil, WithSettleDelay(-time.Second)); err == nil {
		t.Error("expected error for negative settle delay")
	}
	if _, err := New(nil, NewMockSynthesizer(), nil, WithLocale("")); err == nil {
		t.Error("expected error for empty locale")
	}
}

func TestSpeak_GuardRaisedBeforePlayback(t *testing.T) {
	synth := NewMockSynthesizer()
	a := newTestAdapter(t, NewMockRecognizer(), synth, nil)

	var guardDuringPlayback bool
	var utterance Utterance
	synth.SpeakFunc = func(ctx context.Context, u Utterance) error {
		guardDuringPlayback = a.State().IsSpeaking()
		utterance = u
		return nil
	}

	start := time.Now()
	if err := a.Speak(context.Background(), "Hello Alice"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if !guardDuringPlayback {
		t.Error("guard was not raised during playback")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Speak returned after %v, before the settle delay", elapsed)
	}
	if a.State().IsSpeaking() {
		t.Error("guard still raised after Speak returned")
	}
	if utterance.Locale != DefaultLocale || utterance.Rate != 1 || utterance.Pitch != 1 || utterance.Volume != 1 {
		t.Errorf("unexpected utterance settings: %+v", utterance)
	}
	if synth.Cancels() != 1 {
		t.Errorf("expected in-flight synthesis to be cancelled once, got %d", synth.Cancels())
	}
}

func TestSpeak_EchoGuardPhaseDuringSettle(t *testing.T) {
	synth := NewMockSynthesizer()
	a, err := New(NewMockRecognizer(), synth, nil, WithSettleDelay(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	var phases []Phase
	a.State().OnChange(func(from, to Phase) { phases = append(phases, to) })

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "question") }()

	waitFor(t, func() bool { return a.State().Phase() == PhaseEchoGuard })
	if _, err := a.Listen(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Listen during echo guard = %v, want ErrBusy", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Speak: %v", err)
	}

	want := []Phase{PhaseAISpeaking, PhaseEchoGuard, PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestListen_BusyWhileSpeaking(t *testing.T) {
	rec := NewMockRecognizer()
	synth := NewMockSynthesizer()
	synth.Delay = 100 * time.Millisecond
	a := newTestAdapter(t, rec, synth, nil)

	go a.Speak(context.Background(), "please wait")
	waitFor(t, a.State().IsSpeaking)

	if _, err := a.Listen(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Listen = %v, want ErrBusy", err)
	}
	if rec.Calls() != 0 {
		t.Errorf("recognizer started %d times while guard raised", rec.Calls())
	}
}

func TestListen_NotAvailable(t *testing.T) {
	a := newTestAdapter(t, nil, NewMockSynthesizer(), nil)
	if _, err := a.Listen(context.Background()); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("nil recognizer: %v", err)
	}

	rec := NewMockRecognizer()
	rec.SetAvailable(false)
	a = newTestAdapter(t, rec, NewMockSynthesizer(), nil)
	if _, err := a.Listen(context.Background()); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("unavailable recognizer: %v", err)
	}
}

func TestListen_Result(t *testing.T) {
	rec := NewMockRecognizer()
	mic := audioio.NewMicrophone()
	a := newTestAdapter(t, rec, NewMockSynthesizer(), mic)

	var holder string
	var opts RecognizeOptions
	rec.RecognizeFunc = func(ctx context.Context, o RecognizeOptions) (Recognition, error) {
		holder = mic.Holder()
		opts = o
		return Recognition{Text: "  I have five years of experience. ", At: time.Now()}, nil
	}

	text, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if text != "I have five years of experience." {
		t.Errorf("text = %q", text)
	}
	if holder != "speech" {
		t.Errorf("mic holder during recognition = %q, want speech", holder)
	}
	if mic.Holder() != "" {
		t.Error("mic still held after Listen returned")
	}
	if opts.Continuous || opts.InterimResults || opts.Locale != DefaultLocale {
		t.Errorf("unexpected recognize options: %+v", opts)
	}
	if a.State().Phase() != PhaseProcessing {
		t.Errorf("phase after listen = %s, want processing", a.State().Phase())
	}
}

func TestTurnPhases(t *testing.T) {
	rec := NewMockRecognizer()
	rec.RecognizeFunc = func(ctx context.Context, o RecognizeOptions) (Recognition, error) {
		return Recognition{Text: "yes", At: time.Now()}, nil
	}
	a := newTestAdapter(t, rec, NewMockSynthesizer(), audioio.NewMicrophone())

	var changes []string
	a.State().OnChange(func(from, to Phase) {
		changes = append(changes, from.String()+">"+to.String())
	})

	if err := a.Speak(context.Background(), "Are you ready?"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if _, err := a.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := a.Speak(context.Background(), "Great."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	want := []string{
		"idle>ai_speaking", "ai_speaking>echo_guard", "echo_guard>idle",
		"idle>listening", "listening>processing",
		"processing>ai_speaking", "ai_speaking>echo_guard", "echo_guard>idle",
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %s, want %s", i, changes[i], want[i])
		}
	}
}

func TestListen_FromProcessing(t *testing.T) {
	rec := NewMockRecognizer()
	rec.RecognizeFunc = func(ctx context.Context, o RecognizeOptions) (Recognition, error) {
		return Recognition{Text: "again", At: time.Now()}, nil
	}
	a := newTestAdapter(t, rec, NewMockSynthesizer(), nil)

	for i := 0; i < 2; i++ {
		if _, err := a.Listen(context.Background()); err != nil {
			t.Fatalf("Listen %d: %v", i, err)
		}
	}
	if a.State().Phase() != PhaseProcessing {
		t.Errorf("phase = %s, want processing", a.State().Phase())
	}
}

func TestListen_ErrorsPassThrough(t *testing.T) {
	for _, want := range []error{ErrNoSpeech, ErrNetwork, ErrAudioCapture, ErrPermissionDenied} {
		t.Run(want.Error(), func(t *testing.T) {
			rec := NewMockRecognizer()
			rec.QueueError(want)
			a := newTestAdapter(t, rec, NewMockSynthesizer(), nil)
			if _, err := a.Listen(context.Background()); !errors.Is(err, want) {
				t.Errorf("Listen = %v, want %v", err, want)
			}
		})
	}

	t.Run("empty transcript", func(t *testing.T) {
		rec := NewMockRecognizer()
		rec.QueueText("   ")
		a := newTestAdapter(t, rec, NewMockSynthesizer(), nil)
		if _, err := a.Listen(context.Background()); !errors.Is(err, ErrNoSpeech) {
			t.Errorf("Listen = %v, want ErrNoSpeech", err)
		}
	})
}

func TestListen_DropsEchoFromGuardWindow(t *testing.T) {
	rec := NewMockRecognizer()
	synth := NewMockSynthesizer()
	a := newTestAdapter(t, rec, synth, nil)

	var capturedAt time.Time
	synth.SpeakFunc = func(ctx context.Context, u Utterance) error {
		capturedAt = time.Now()
		return nil
	}
	if err := a.Speak(context.Background(), "Tell me about yourself."); err != nil {
		t.Fatal(err)
	}

	rec.QueueResult(Recognition{Text: "Tell me about yourself.", At: capturedAt}, nil)
	if _, err := a.Listen(context.Background()); !errors.Is(err, ErrEchoDropped) {
		t.Fatalf("Listen = %v, want ErrEchoDropped", err)
	}
	if rec.Calls() != 1 {
		t.Errorf("recognizer called %d times, want 1", rec.Calls())
	}

	rec.QueueText("a real answer")
	text, err := a.Listen(context.Background())
	if err != nil || text != "a real answer" {
		t.Errorf("Listen after echo = %q, %v", text, err)
	}
}

func TestCancel_AbortsListen(t *testing.T) {
	rec := NewMockRecognizer()
	a := newTestAdapter(t, rec, NewMockSynthesizer(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := a.Listen(context.Background())
		done <- err
	}()
	waitFor(t, a.State().IsListening)

	if err := a.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := a.Cancel(); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("Listen = %v, want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after Cancel")
	}
	if a.State().Phase() != PhaseIdle {
		t.Errorf("phase after cancel = %s", a.State().Phase())
	}
}

func TestSpeak_CancelsListen(t *testing.T) {
	rec := NewMockRecognizer()
	a := newTestAdapter(t, rec, NewMockSynthesizer(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := a.Listen(context.Background())
		done <- err
	}()
	waitFor(t, a.State().IsListening)

	if err := a.Speak(context.Background(), "interrupting"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrAborted) {
		t.Errorf("Listen = %v, want ErrAborted", err)
	}
}

func TestSpeak_HoldsMicThroughEchoGuard(t *testing.T) {
	mic := audioio.NewMicrophone()
	synth := NewMockSynthesizer()
	a := newTestAdapter(t, NewMockRecognizer(), synth, mic)

	var holder string
	synth.SpeakFunc = func(ctx context.Context, u Utterance) error {
		holder = mic.Holder()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "Tell me about yourself.") }()

	waitFor(t, func() bool { return a.State().Phase() == PhaseEchoGuard })
	if release, ok := mic.TryAcquire("noise"); ok {
		release()
		t.Error("microphone free during echo guard")
	}

	if err := <-done; err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if holder != micOwner {
		t.Errorf("holder during playback = %q, want %q", holder, micOwner)
	}
	if got := mic.Holder(); got != "" {
		t.Errorf("holder after Speak = %q, want free", got)
	}
}

func TestSpeak_WaitsForMic(t *testing.T) {
	mic := audioio.NewMicrophone()
	synth := NewMockSynthesizer()
	a := newTestAdapter(t, NewMockRecognizer(), synth, mic)

	release, ok := mic.TryAcquire("noise")
	if !ok {
		t.Fatal("could not take mic")
	}

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "hello") }()
	waitFor(t, a.State().IsSpeaking)

	time.Sleep(20 * time.Millisecond)
	if n := len(synth.Spoken()); n != 0 {
		t.Fatalf("playback started while mic was held elsewhere (%d utterances)", n)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if n := len(synth.Spoken()); n != 1 {
		t.Errorf("spoken = %d, want 1", n)
	}
}

func TestSpeak_SupersededByNewSpeak(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.Delay = 200 * time.Millisecond
	a := newTestAdapter(t, NewMockRecognizer(), synth, nil)

	first := make(chan error, 1)
	go func() { first <- a.Speak(context.Background(), "first") }()
	waitFor(t, func() bool { return len(synth.Spoken()) == 1 })

	synth.Delay = 0
	if err := a.Speak(context.Background(), "second"); err != nil {
		t.Fatalf("second Speak: %v", err)
	}
	if err := <-first; !errors.Is(err, ErrAborted) {
		t.Errorf("first Speak = %v, want ErrAborted", err)
	}
	if a.State().IsSpeaking() {
		t.Error("guard left raised after superseded speak")
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{CodeNoSpeech, ErrNoSpeech},
		{CodeAudioCapture, ErrAudioCapture},
		{CodeNotAllowed, ErrPermissionDenied},
		{CodeServiceNotAllowed, ErrPermissionDenied},
		{CodeNetwork, ErrNetwork},
		{CodeAborted, ErrAborted},
		{CodeNotSupported, ErrNotAvailable},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := ErrorFromCode(tc.code, "detail")
			if !errors.Is(err, tc.want) {
				t.Errorf("ErrorFromCode(%q) = %v", tc.code, err)
			}
			if tc.code != CodeServiceNotAllowed && CodeFromError(err) != tc.code {
				t.Errorf("CodeFromError round trip = %q", CodeFromError(err))
			}
		})
	}

	if err := ErrorFromCode("bad-grammar", ""); err == nil || CodeFromError(err) != "" {
		t.Errorf("unknown code mapped to sentinel: %v", err)
	}
}

func TestTurnStateSuppressed(t *testing.T) {
	s := NewTurnState()
	before := time.Now()
	time.Sleep(time.Millisecond)

	s.raiseGuard()
	if !s.Suppressed(time.Time{}) {
		t.Error("guard raised should suppress any input")
	}
	during := time.Now()
	s.settle()
	s.lowerGuard()
	time.Sleep(time.Millisecond)
	after := time.Now()

	if s.Suppressed(before) {
		t.Error("input before the guard window was suppressed")
	}
	if !s.Suppressed(during) {
		t.Error("input inside the guard window was not suppressed")
	}
	if s.Suppressed(after) {
		t.Error("input after the guard window was suppressed")
	}

	if err := s.EnterProcessing(); err != nil {
		t.Errorf("EnterProcessing: %v", err)
	}
	if err := s.beginListening(); err != nil {
		t.Errorf("beginListening from processing: %v", err)
	}
	if err := s.beginListening(); !errors.Is(err, ErrBusy) {
		t.Errorf("second beginListening = %v, want ErrBusy", err)
	}
}
