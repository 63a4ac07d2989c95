package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

// SampleRate of the PCM produced by every provider.
const SampleRate = 48000

var (
	ErrMissingAPIKey = errors.New("api key or voice missing")
	ErrEmptyText     = errors.New("tts: nothing to speak")
)

// Provider is a streaming text-to-speech backend producing 48 kHz 16-bit mono PCM.
// The error channel carries at most one error and is closed with the audio channel.
type Provider interface {
	Voices() []agent.Voice
	Stream(ctx context.Context, voice, text string) (<-chan []byte, <-chan error)
}

// ProviderOptions selects and configures a Provider.
type ProviderOptions struct {
	Name              string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsURL     string
	Logger            zerolog.Logger
}

// NewProvider returns the configured provider, or nil when its credentials are missing.
func NewProvider(o ProviderOptions) (Provider, error) {
	switch strings.ToLower(o.Name) {
	case "", "deepgram":
		if o.DeepgramKey == "" {
			return nil, nil
		}
		return NewDeepgram(o.DeepgramKey, o.DeepgramModel, o.Logger), nil
	case "elevenlabs":
		if o.ElevenLabsKey == "" || o.ElevenLabsVoiceID == "" {
			return nil, nil
		}
		return NewElevenLabs(o.ElevenLabsKey, o.ElevenLabsVoiceID, o.ElevenLabsURL, o.Logger), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", o.Name)
	}
}

// Sink receives synthesized PCM frames, e.g. a client connection.
type Sink func(pcm []byte) error

// Synthesizer adapts a Provider to agent.Synthesizer. Frames go to the sink as
// they arrive; SynthesisEnded is emitted once the audio has had time to play.
type Synthesizer struct {
	provider Provider
	sink     Sink
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSynthesizer(provider Provider, sink Sink, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{provider: provider, sink: sink, log: log}
}

func (s *Synthesizer) Voices() []agent.Voice { return s.provider.Voices() }

// Speak cancels any utterance in progress and starts u.
func (s *Synthesizer) Speak(ctx context.Context, u agent.Utterance, emit func(agent.SynthesisEvent)) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}
	sctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	voice := ""
	if u.Voice != nil {
		voice = u.Voice.ID
	}
	pcm, errs := s.provider.Stream(sctx, voice, u.Text)
	emit(agent.SynthesisEvent{Kind: agent.SynthesisStarted})
	go s.play(sctx, cancel, u.Volume, pcm, errs, emit)
	return nil
}

// Cancel stops the current utterance. Its events are not emitted.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Synthesizer) play(ctx context.Context, cancel context.CancelFunc, volume float64, pcm <-chan []byte, errs <-chan error, emit func(agent.SynthesisEvent)) {
	defer cancel()
	start := time.Now()
	var written int
	var sinkErr error
	for frame := range pcm {
		if sinkErr != nil || ctx.Err() != nil {
			continue
		}
		if err := s.sink(applyVolume(frame, volume)); err != nil {
			sinkErr = err
			cancel()
			continue
		}
		written += len(frame)
	}
	streamErr := <-errs

	switch {
	case sinkErr != nil:
		emit(agent.SynthesisEvent{Kind: agent.SynthesisFailed, Error: sinkErr.Error()})
		return
	case ctx.Err() != nil:
		return
	case streamErr != nil:
		s.log.Warn().Err(streamErr).Msg("speech synthesis failed")
		emit(agent.SynthesisEvent{Kind: agent.SynthesisFailed, Error: streamErr.Error()})
		return
	}

	// wait until the client had time to play what was sent
	if remaining := playbackDuration(written) - time.Since(start); remaining > 0 {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
	if ctx.Err() != nil {
		return
	}
	emit(agent.SynthesisEvent{Kind: agent.SynthesisEnded})
}

func playbackDuration(bytes int) time.Duration {
	return time.Duration(bytes/2) * time.Second / SampleRate
}

// applyVolume scales 16-bit little-endian samples. Volume 1 (or unset) is a no-op.
func applyVolume(pcm []byte, volume float64) []byte {
	if volume <= 0 || volume >= 1 || math.IsNaN(volume) {
		return pcm
	}
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(v)*volume)))
	}
	return out
}
