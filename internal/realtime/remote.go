package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

// remoteRecognizer drives the browser's own speech recognition. Start and
// Stop become control frames; the browser reports back with recognition frames.
type remoteRecognizer struct {
	send func(v any) error

	mu     sync.Mutex
	emit   func(agent.RecognitionEvent)
	active bool
}

func (r *remoteRecognizer) Start(_ context.Context, emit func(agent.RecognitionEvent)) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return agent.ErrCaptureActive
	}
	r.active, r.emit = true, emit
	r.mu.Unlock()

	if err := r.send(controlMessage{Type: typeRecognitionStart}); err != nil {
		r.mu.Lock()
		r.active, r.emit = false, nil
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *remoteRecognizer) Stop() error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if !active {
		return nil
	}
	return r.send(controlMessage{Type: typeRecognitionStop})
}

// deliver forwards a recognition frame from the browser to the open session.
func (r *remoteRecognizer) deliver(m clientMessage) {
	ev, ok := recognitionEvent(m)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	emit := r.emit
	if ev.Kind == agent.RecognitionError || ev.Kind == agent.RecognitionEnded || (ev.Kind == agent.RecognitionResult && ev.Final) {
		r.active, r.emit = false, nil
	}
	r.mu.Unlock()
	emit(ev)
}

func recognitionEvent(m clientMessage) (agent.RecognitionEvent, bool) {
	switch strings.ToLower(m.Event) {
	case "start":
		return agent.RecognitionEvent{Kind: agent.RecognitionStarted}, true
	case "result":
		return agent.RecognitionEvent{Kind: agent.RecognitionResult, Text: m.Text, Final: m.Final}, true
	case "error":
		return agent.RecognitionEvent{Kind: agent.RecognitionError, Error: m.Error}, true
	case "end":
		return agent.RecognitionEvent{Kind: agent.RecognitionEnded}, true
	default:
		return agent.RecognitionEvent{}, false
	}
}

// remoteSynthesizer speaks through the browser's speech synthesis. Each
// utterance gets an id the browser echoes in its synthesis frames.
type remoteSynthesizer struct {
	send func(v any) error

	mu      sync.Mutex
	voices  []agent.Voice
	current string
	emit    func(agent.SynthesisEvent)
}

func (s *remoteSynthesizer) Voices() []agent.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Voice(nil), s.voices...)
}

func (s *remoteSynthesizer) setVoices(voices []agent.Voice) {
	s.mu.Lock()
	s.voices = append([]agent.Voice(nil), voices...)
	s.mu.Unlock()
}

func (s *remoteSynthesizer) Speak(_ context.Context, u agent.Utterance, emit func(agent.SynthesisEvent)) error {
	id := uuid.NewString()
	s.mu.Lock()
	s.current, s.emit = id, emit
	s.mu.Unlock()

	msg := speakMessage{Type: typeSpeak, ID: id, Text: u.Text, Rate: u.Rate, Pitch: u.Pitch, Volume: u.Volume}
	if u.Voice != nil {
		msg.Voice, msg.Lang = u.Voice.Name, u.Voice.Lang
	}
	if err := s.send(msg); err != nil {
		s.mu.Lock()
		if s.current == id {
			s.current, s.emit = "", nil
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *remoteSynthesizer) Cancel() {
	s.mu.Lock()
	id := s.current
	s.current, s.emit = "", nil
	s.mu.Unlock()
	if id != "" {
		_ = s.send(controlMessage{Type: typeCancelSpeech, ID: id})
	}
}

// deliver forwards a synthesis frame for the current utterance.
func (s *remoteSynthesizer) deliver(m clientMessage) {
	var ev agent.SynthesisEvent
	switch strings.ToLower(m.Event) {
	case "start":
		ev = agent.SynthesisEvent{Kind: agent.SynthesisStarted}
	case "end":
		ev = agent.SynthesisEvent{Kind: agent.SynthesisEnded}
	case "error":
		ev = agent.SynthesisEvent{Kind: agent.SynthesisFailed, Error: m.Error}
	default:
		return
	}
	s.mu.Lock()
	if m.ID == "" || m.ID != s.current {
		s.mu.Unlock()
		return
	}
	emit := s.emit
	if ev.Kind != agent.SynthesisStarted {
		s.current, s.emit = "", nil
	}
	s.mu.Unlock()
	emit(ev)
}
