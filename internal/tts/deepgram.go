package tts

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

// DefaultDeepgramModel is the Aura voice used when none is configured.
const DefaultDeepgramModel = "aura-2-thalia-en"

const (
	deepgramIdleWindow = 400 * time.Millisecond
	deepgramDeadline   = 12 * time.Second
)

var deepgramVoices = []agent.Voice{
	{ID: "aura-2-thalia-en", Name: "Thalia (Natural)", Lang: "en-US"},
	{ID: "aura-2-andromeda-en", Name: "Andromeda (Natural)", Lang: "en-US"},
	{ID: "aura-2-helena-en", Name: "Helena (Natural)", Lang: "en-US"},
	{ID: "aura-2-apollo-en", Name: "Apollo (Natural)", Lang: "en-US"},
	{ID: "aura-2-arcas-en", Name: "Arcas (Natural)", Lang: "en-US"},
	{ID: "aura-2-draco-en", Name: "Draco (Natural)", Lang: "en-GB"},
}

// Deepgram streams Aura speech over the Deepgram speak WebSocket.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	log        zerolog.Logger
}

func NewDeepgram(apiKey, model string, log zerolog.Logger) *Deepgram {
	if model == "" {
		model = DefaultDeepgramModel
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: SampleRate, encoding: "linear16", log: log}
}

// Voices lists the Aura catalogue with the configured model first.
func (d *Deepgram) Voices() []agent.Voice {
	out := make([]agent.Voice, 0, len(deepgramVoices)+1)
	for _, v := range deepgramVoices {
		if v.ID == d.model {
			v.Default = true
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = append(out, agent.Voice{ID: d.model, Name: d.model + " (Natural)", Lang: "en-US", Default: true})
	}
	for _, v := range deepgramVoices {
		if v.ID != d.model {
			out = append(out, v)
		}
	}
	return out
}

// Stream synthesizes text with voice (the configured model when empty) and
// delivers 48 kHz linear16 frames until the service goes quiet.
func (d *Deepgram) Stream(ctx context.Context, voice, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- fmt.Errorf("deepgram: %w", ErrMissingAPIKey)
			return
		}
		if text == "" {
			return
		}
		model := d.model
		if voice != "" {
			model = voice
		}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      model,
			Encoding:   d.encoding,
			SampleRate: d.sampleRate,
		}

		var lastRecvUnix int64
		var seenAudio int32

		cb := &speakCallback{
			onBinary: func(data []byte) error {
				if len(data) == 0 {
					return nil
				}
				atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
				atomic.StoreInt32(&seenAudio, 1)
				b := make([]byte, len(data))
				copy(b, data)
				select {
				case pcmCh <- b:
				default:
				}
				return nil
			},
			onError: func(e *msginterfaces.ErrorResponse) {
				d.log.Warn().Interface("error", e).Msg("deepgram error")
			},
		}

		dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- fmt.Errorf("deepgram: create ws client: %w", err)
			return
		}

		stopped := false
		stopClient := func() {
			if !stopped {
				stopped = true
				dg.Stop()
			}
		}
		defer stopClient()

		if ok := dg.Connect(); !ok {
			errCh <- fmt.Errorf("deepgram: connect failed")
			return
		}

		if err := dg.SpeakWithText(text); err != nil {
			errCh <- fmt.Errorf("deepgram: speak text: %w", err)
			return
		}
		if err := dg.Flush(); err != nil {
			d.log.Debug().Err(err).Msg("deepgram flush")
		}

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.Now().Add(deepgramDeadline)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt32(&seenAudio) == 1 {
					last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
					if time.Since(last) > deepgramIdleWindow {
						return
					}
				}
				if time.Now().After(deadline) {
					if atomic.LoadInt32(&seenAudio) == 0 {
						errCh <- fmt.Errorf("deepgram: no audio received")
					}
					return
				}
			}
		}
	}()

	return pcmCh, errCh
}

type speakCallback struct {
	onBinary func([]byte) error
	onError  func(*msginterfaces.ErrorResponse)
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	if s.onError != nil && e != nil {
		s.onError(e)
	}
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
