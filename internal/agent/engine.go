package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/llm"
	"github.com/JohnHCunningham/housing-website/internal/metrics"
)

// Error messages surfaced through Events.OnError.
const (
	msgRecognitionUnsupported = "Speech recognition is not supported in this environment."
	msgSynthesisUnsupported   = "Speech synthesis is not supported in this environment."
	msgRecognitionUnavailable = "Speech recognition not available"
	msgNoSpeech               = "No speech detected. Please try again."
	msgMicrophoneDenied       = "Microphone access denied. Please allow microphone access."
	msgRecognitionError       = "Speech recognition error"
	msgAssistantUnavailable   = "Assistant not available"
	msgStillThinking          = "Still working on the previous question. Please wait for the answer."
)

// Options configures an Engine. Nil Recognizer or Synthesizer means the
// capability is unavailable.
type Options struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Assistant   Assistant
	Context     SystemContext
	// ContextWait bounds how long a send waits for the system context to finish loading.
	ContextWait time.Duration
	Events      Events
	Logger      zerolog.Logger
}

// Engine owns one conversation: its history, its status, and the
// listen -> send -> receive -> speak cycle. All state changes happen on a
// single goroutine fed by a mailbox; public methods only enqueue work.
type Engine struct {
	caps      Capabilities
	rec       Recognizer
	syn       Synthesizer
	assistant Assistant
	sysctx    SystemContext
	wait      time.Duration
	log       zerolog.Logger

	box    *mailbox
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by mu for readers outside the loop; written only by the loop.
	mu      sync.RWMutex
	status  Status
	history []Turn

	// loop-owned
	events     Events
	captureSeq uint64
	utterSeq   uint64
	epoch      uint64
}

// New constructs an Engine and starts its event loop. Missing capabilities
// are reported once through Events.OnError.
func New(opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		caps:      Negotiate(opts.Recognizer, opts.Synthesizer),
		rec:       opts.Recognizer,
		syn:       opts.Synthesizer,
		assistant: opts.Assistant,
		sysctx:    opts.Context,
		wait:      opts.ContextWait,
		log:       opts.Logger,
		box:       newMailbox(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		events:    opts.Events.withDefaults(),
	}
	go e.run()

	e.post(func() {
		if !e.caps.SpeechInput {
			e.reportError("capability", msgRecognitionUnsupported)
		}
		if !e.caps.SpeechOutput {
			e.reportError("capability", msgSynthesisUnsupported)
		}
	})
	return e
}

// Capabilities returns the descriptor negotiated at construction.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// Status returns the current status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// History returns a copy of the conversation history.
func (e *Engine) History() []Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}

// SetEvents replaces the presentation callbacks.
func (e *Engine) SetEvents(ev Events) {
	ev = ev.withDefaults()
	e.post(func() { e.events = ev })
}

// StartListening opens a capture session. It is a no-op while listening and
// cancels playback first when speaking.
func (e *Engine) StartListening() { e.post(e.startListening) }

// StopListening asks the recognizer to end the current session. Idempotent.
func (e *Engine) StopListening() { e.post(e.stopListening) }

// HandleFinalTranscript commits text as a user turn and sends the history.
// While a reply is pending the text is rejected through OnError.
func (e *Engine) HandleFinalTranscript(text string) {
	e.post(func() { e.commitUserTurn(text, TriggerFinal) })
}

// SendToAssistant re-sends the current history when the engine is idle and
// the last turn is the user's, e.g. after a failed request.
func (e *Engine) SendToAssistant() {
	e.post(func() {
		h := e.History()
		if len(h) == 0 || h[len(h)-1].Role != llm.RoleUser {
			e.log.Debug().Msg("nothing to send")
			return
		}
		if e.fire(TriggerSend) {
			e.sendToAssistant()
		}
	})
}

// Speak plays text through the synthesizer. It is ignored while a reply is
// pending.
func (e *Engine) Speak(text string) { e.post(func() { e.speak(text) }) }

// StopSpeaking cancels playback and returns to idle.
func (e *Engine) StopSpeaking() { e.post(e.stopSpeaking) }

// ResetConversation clears history, stops capture and playback and forces idle.
// The system context is kept.
func (e *Engine) ResetConversation() { e.post(e.reset) }

// Sync waits until every call made before it has been handled.
func (e *Engine) Sync() {
	e.call(func() {})
}

// Close stops capture and playback and terminates the event loop. Replies
// still in flight are dropped.
func (e *Engine) Close() {
	e.call(func() {
		if e.status == StatusListening && e.rec != nil {
			_ = e.rec.Stop()
		}
		if e.syn != nil {
			e.syn.Cancel()
		}
	})
	e.cancel()
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			e.box.close()
			return
		case <-e.box.signal:
		}
		for f := e.box.take(); f != nil; f = e.box.take() {
			if e.ctx.Err() != nil {
				break
			}
			f()
		}
	}
}

func (e *Engine) post(f func()) bool { return e.box.put(f) }

func (e *Engine) call(f func()) {
	done := make(chan struct{})
	if !e.post(func() { f(); close(done) }) {
		return
	}
	select {
	case <-done:
	case <-e.done:
	}
}

// fire applies t through the transition table and notifies on change.
func (e *Engine) fire(t Trigger) bool {
	from := e.status
	to, ok := Next(from, t)
	if !ok {
		e.log.Debug().Stringer("status", from).Stringer("trigger", t).Msg("trigger ignored")
		return false
	}
	if to == from {
		return true
	}
	e.mu.Lock()
	e.status = to
	e.mu.Unlock()
	e.log.Debug().Stringer("from", from).Stringer("to", to).Stringer("trigger", t).Msg("status changed")
	e.events.OnStatusChange(to)
	return true
}

func (e *Engine) appendTurn(role llm.Role, content string) {
	e.mu.Lock()
	e.history = append(e.history, Turn{Role: role, Content: content})
	e.mu.Unlock()
	metrics.TurnsTotal.WithLabelValues(string(role)).Inc()
}

func (e *Engine) reportError(kind, msg string) {
	metrics.EngineErrorsTotal.WithLabelValues(kind).Inc()
	e.log.Warn().Str("kind", kind).Msg(msg)
	e.events.OnError(msg)
}

func (e *Engine) startListening() {
	if e.rec == nil {
		e.reportError("capability", msgRecognitionUnavailable)
		return
	}
	switch e.status {
	case StatusListening:
		return
	case StatusThinking:
		e.log.Debug().Msg("start listening ignored while a reply is pending")
		return
	case StatusSpeaking:
		e.cancelPlayback()
	}

	e.captureSeq++
	seq := e.captureSeq
	emit := func(ev RecognitionEvent) {
		e.post(func() { e.onRecognition(seq, ev) })
	}
	if err := e.rec.Start(e.ctx, emit); err != nil {
		e.captureSeq++
		if e.status == StatusSpeaking {
			e.fire(TriggerStopSpeaking)
		}
		if errors.Is(err, ErrCaptureActive) {
			e.log.Debug().Msg("capture already active")
			return
		}
		e.reportError("capture", "Could not start listening: "+err.Error())
		return
	}
	e.fire(TriggerListen)
}

func (e *Engine) stopListening() {
	if e.rec == nil || e.status != StatusListening {
		return
	}
	if err := e.rec.Stop(); err != nil {
		e.log.Debug().Err(err).Msg("stop listening")
	}
}

func (e *Engine) onRecognition(seq uint64, ev RecognitionEvent) {
	if seq != e.captureSeq {
		return
	}
	switch ev.Kind {
	case RecognitionStarted:
		e.log.Debug().Msg("capture started")
	case RecognitionResult:
		if e.status != StatusListening {
			return
		}
		if !ev.Final {
			if strings.TrimSpace(ev.Text) != "" {
				e.events.OnTranscript(ev.Text, false)
			}
			return
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			// a final result closes the session even when it carries nothing
			e.captureSeq++
			e.fire(TriggerCaptureEnd)
			return
		}
		// the session is complete once a final result is committed
		e.captureSeq++
		e.events.OnTranscript(text, true)
		e.commitUserTurn(text, TriggerFinal)
	case RecognitionError:
		e.captureSeq++
		e.fire(TriggerCaptureError)
		e.reportError("capture", recognitionMessage(ev.Error))
	case RecognitionEnded:
		e.captureSeq++
		e.fire(TriggerCaptureEnd)
	}
}

func recognitionMessage(kind string) string {
	switch kind {
	case "no-speech":
		return msgNoSpeech
	case "not-allowed", "service-not-allowed":
		return msgMicrophoneDenied
	default:
		return msgRecognitionError
	}
}

// commitUserTurn appends a non-empty user turn and issues the request.
func (e *Engine) commitUserTurn(text string, t Trigger) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if _, ok := Next(e.status, t); !ok {
		if e.status == StatusThinking {
			e.reportError("busy", msgStillThinking)
			return
		}
		e.log.Debug().Stringer("status", e.status).Msg("transcript ignored")
		return
	}
	switch e.status {
	case StatusListening:
		e.captureSeq++
		if e.rec != nil {
			_ = e.rec.Stop()
		}
	case StatusSpeaking:
		e.cancelPlayback()
	}
	e.appendTurn(llm.RoleUser, text)
	e.fire(t)
	e.sendToAssistant()
}

// sendToAssistant posts {system, messages} on its own goroutine and feeds
// the outcome back into the loop. Outcomes from before a reset are dropped.
func (e *Engine) sendToAssistant() {
	if e.assistant == nil {
		e.fire(TriggerReplyFailed)
		e.reportError("request", msgAssistantUnavailable)
		return
	}
	epoch := e.epoch
	messages := e.History()
	go func() {
		system := ""
		if e.sysctx != nil {
			system = e.sysctx.Wait(e.ctx, e.wait)
		}
		reply, err := e.assistant.Complete(e.ctx, system, messages)
		e.post(func() { e.onReply(epoch, reply, err) })
	}()
}

func (e *Engine) onReply(epoch uint64, reply string, err error) {
	if epoch != e.epoch || e.status != StatusThinking {
		e.log.Debug().Msg("dropping stale reply")
		return
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = llm.ErrEmptyReply
	}
	if err != nil {
		e.reportError("request", "Error getting response: "+err.Error())
		e.fire(TriggerReplyFailed)
		return
	}
	e.appendTurn(llm.RoleAssistant, reply)
	e.events.OnResponse(reply)
	if e.syn == nil {
		e.fire(TriggerReplyUnspoken)
		return
	}
	e.play(reply, TriggerReply)
}

func (e *Engine) speak(text string) { e.play(text, TriggerSpeak) }

// play starts an utterance if t is valid in the current status. Replies use
// TriggerReply so an ad-hoc Speak cannot displace a pending reply.
func (e *Engine) play(text string, t Trigger) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if e.syn == nil {
		e.reportError("capability", msgSynthesisUnsupported)
		return
	}
	if _, ok := Next(e.status, t); !ok {
		e.log.Debug().Stringer("status", e.status).Msg("speak ignored")
		return
	}
	if e.status == StatusListening {
		e.captureSeq++
		if e.rec != nil {
			_ = e.rec.Stop()
		}
	}
	e.cancelPlayback()

	e.utterSeq++
	seq := e.utterSeq
	u := Utterance{
		Text:   text,
		Voice:  SelectVoice(e.syn.Voices()),
		Rate:   1.0,
		Pitch:  1.0,
		Volume: 1.0,
	}
	emit := func(ev SynthesisEvent) {
		e.post(func() { e.onSynthesis(seq, ev) })
	}
	e.fire(t)
	if err := e.syn.Speak(e.ctx, u, emit); err != nil {
		e.utterSeq++
		e.fire(TriggerPlaybackFailed)
		e.reportError("synthesis", "Speech synthesis error: "+err.Error())
	}
}

func (e *Engine) onSynthesis(seq uint64, ev SynthesisEvent) {
	if seq != e.utterSeq {
		return
	}
	switch ev.Kind {
	case SynthesisStarted:
		e.log.Debug().Msg("playback started")
	case SynthesisEnded:
		e.utterSeq++
		e.fire(TriggerPlaybackDone)
	case SynthesisFailed:
		e.utterSeq++
		e.fire(TriggerPlaybackFailed)
		e.reportError("synthesis", "Speech synthesis error: "+ev.Error)
	}
}

// cancelPlayback aborts any utterance and invalidates its pending events.
func (e *Engine) cancelPlayback() {
	if e.syn == nil {
		return
	}
	e.syn.Cancel()
	e.utterSeq++
}

func (e *Engine) stopSpeaking() {
	if e.status != StatusSpeaking {
		return
	}
	e.cancelPlayback()
	e.fire(TriggerStopSpeaking)
}

func (e *Engine) reset() {
	e.epoch++
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
	if e.status == StatusListening && e.rec != nil {
		_ = e.rec.Stop()
	}
	e.captureSeq++
	e.cancelPlayback()
	// idle is announced even when the engine was already idle
	if e.status == StatusIdle {
		e.events.OnStatusChange(StatusIdle)
		return
	}
	e.fire(TriggerReset)
}
