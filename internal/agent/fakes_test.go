package agent

import (
	"context"
	"sync"
	"time"

	"github.com/JohnHCunningham/housing-website/internal/llm"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	emit     func(RecognitionEvent)
	active   bool
	starts   int
	stops    int
	startErr error
}

func (f *fakeRecognizer) Start(_ context.Context, emit func(RecognitionEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.active {
		return ErrCaptureActive
	}
	f.active = true
	f.emit = emit
	f.starts++
	emit(RecognitionEvent{Kind: RecognitionStarted})
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	f.stops++
	was := f.active
	f.active = false
	emit := f.emit
	f.mu.Unlock()
	if was && emit != nil {
		emit(RecognitionEvent{Kind: RecognitionEnded})
	}
	return nil
}

func (f *fakeRecognizer) isActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// send delivers ev through the emitter of the latest session.
func (f *fakeRecognizer) send(ev RecognitionEvent) {
	f.mu.Lock()
	emit := f.emit
	if ev.Kind == RecognitionError || ev.Kind == RecognitionEnded || (ev.Kind == RecognitionResult && ev.Final) {
		f.active = false
	}
	f.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

func (f *fakeRecognizer) interim(text string) {
	f.send(RecognitionEvent{Kind: RecognitionResult, Text: text})
}

func (f *fakeRecognizer) final(text string) {
	f.send(RecognitionEvent{Kind: RecognitionResult, Text: text, Final: true})
}

type fakeSynthesizer struct {
	mu      sync.Mutex
	voices  []Voice
	hold    bool
	active  bool
	spoken  []Utterance
	emits   []func(SynthesisEvent)
	cancels int
	err     error
}

func (f *fakeSynthesizer) Voices() []Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Voice(nil), f.voices...)
}

func (f *fakeSynthesizer) Speak(_ context.Context, u Utterance, emit func(SynthesisEvent)) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.spoken = append(f.spoken, u)
	f.emits = append(f.emits, emit)
	f.active = true
	hold := f.hold
	if !hold {
		f.active = false
	}
	f.mu.Unlock()

	emit(SynthesisEvent{Kind: SynthesisStarted})
	if !hold {
		emit(SynthesisEvent{Kind: SynthesisEnded})
	}
	return nil
}

func (f *fakeSynthesizer) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.active = false
	f.mu.Unlock()
}

func (f *fakeSynthesizer) isActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeSynthesizer) utterances() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

// finish completes the i-th utterance.
func (f *fakeSynthesizer) finish(i int, ev SynthesisEvent) {
	f.mu.Lock()
	emit := f.emits[i]
	if i == len(f.emits)-1 {
		f.active = false
	}
	f.mu.Unlock()
	emit(ev)
}

type assistantCall struct {
	system   string
	messages []llm.Message
}

type fakeAssistant struct {
	mu    sync.Mutex
	calls []assistantCall
	reply string
	err   error
	gate  chan struct{}
}

func (f *fakeAssistant) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, assistantCall{system: system, messages: append([]llm.Message(nil), messages...)})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeAssistant) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAssistant) call(i int) assistantCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type recorder struct {
	mu          sync.Mutex
	statuses    []Status
	transcripts []string
	finals      []bool
	responses   []string
	errors      []string
}

func (r *recorder) events() Events {
	return Events{
		OnStatusChange: func(s Status) {
			r.mu.Lock()
			r.statuses = append(r.statuses, s)
			r.mu.Unlock()
		},
		OnTranscript: func(text string, final bool) {
			r.mu.Lock()
			r.transcripts = append(r.transcripts, text)
			r.finals = append(r.finals, final)
			r.mu.Unlock()
		},
		OnResponse: func(text string) {
			r.mu.Lock()
			r.responses = append(r.responses, text)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) statusList() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) errorList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) responseList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.responses...)
}

type staticContext string

func (s staticContext) Wait(context.Context, time.Duration) string { return string(s) }
