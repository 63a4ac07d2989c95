package agent

import (
	"context"
	"errors"
	"time"

	"github.com/JohnHCunningham/housing-website/internal/llm"
)

// Turn is one message of the conversation history.
type Turn = llm.Message

// Status is the agent state shown to the user. Exactly one holds at a time.
type Status int

const (
	StatusIdle Status = iota
	StatusListening
	StatusThinking
	StatusSpeaking
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusListening:
		return "listening"
	case StatusThinking:
		return "thinking"
	case StatusSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Events are the presentation callbacks. They run on the engine goroutine and
// must not block on engine methods that wait for the loop (Status, History, Sync).
type Events struct {
	OnStatusChange func(Status)
	OnTranscript   func(text string, final bool)
	OnResponse     func(text string)
	OnError        func(message string)
}

func (ev Events) withDefaults() Events {
	if ev.OnStatusChange == nil {
		ev.OnStatusChange = func(Status) {}
	}
	if ev.OnTranscript == nil {
		ev.OnTranscript = func(string, bool) {}
	}
	if ev.OnResponse == nil {
		ev.OnResponse = func(string) {}
	}
	if ev.OnError == nil {
		ev.OnError = func(string) {}
	}
	return ev
}

// ErrCaptureActive is returned by a Recognizer asked to start while a capture session is open.
var ErrCaptureActive = errors.New("agent: capture session already active")

// RecognitionEventKind enumerates speech input lifecycle events.
type RecognitionEventKind int

const (
	RecognitionStarted RecognitionEventKind = iota
	RecognitionResult
	RecognitionError
	RecognitionEnded
)

// RecognitionEvent is emitted by a Recognizer. For RecognitionResult, Final
// distinguishes interim from complete text; for RecognitionError, Error holds
// the kind ("no-speech", "not-allowed", ...).
type RecognitionEvent struct {
	Kind  RecognitionEventKind
	Text  string
	Final bool
	Error string
}

// Recognizer is a speech input capability. Per capture session it emits
// RecognitionStarted, zero or more interim results, then exactly one of a
// final result, an error, or RecognitionEnded without a result. Only one
// session may be open at a time.
type Recognizer interface {
	Start(ctx context.Context, emit func(RecognitionEvent)) error
	Stop() error
}

// SynthesisEventKind enumerates speech output lifecycle events.
type SynthesisEventKind int

const (
	SynthesisStarted SynthesisEventKind = iota
	SynthesisEnded
	SynthesisFailed
)

// SynthesisEvent is emitted by a Synthesizer for one utterance.
type SynthesisEvent struct {
	Kind  SynthesisEventKind
	Error string
}

// Voice is a synthesizer voice.
type Voice struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is a request to speak text.
type Utterance struct {
	Text   string
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64
}

// Synthesizer is a speech output capability. Speak emits SynthesisStarted and
// then exactly one of SynthesisEnded or SynthesisFailed. Cancel aborts the
// current utterance at once; a following Speak must work without residue.
// Voices is queried at speak time and may return an empty list.
type Synthesizer interface {
	Voices() []Voice
	Speak(ctx context.Context, u Utterance, emit func(SynthesisEvent)) error
	Cancel()
}

// Assistant produces the assistant reply for a conversation.
type Assistant interface {
	Complete(ctx context.Context, system string, messages []llm.Message) (string, error)
}

// SystemContext supplies the system prompt. Wait returns the value present
// once it is ready or after max, whichever comes first.
type SystemContext interface {
	Wait(ctx context.Context, max time.Duration) string
}

// Capabilities describes which speech capabilities an engine was built with.
type Capabilities struct {
	SpeechInput  bool `json:"speechInput"`
	SpeechOutput bool `json:"speechOutput"`
}

// Supported reports whether both capabilities are present.
func (c Capabilities) Supported() bool { return c.SpeechInput && c.SpeechOutput }

// Negotiate derives the capability descriptor from the adapters on hand.
func Negotiate(r Recognizer, s Synthesizer) Capabilities {
	return Capabilities{SpeechInput: r != nil, SpeechOutput: s != nil}
}
