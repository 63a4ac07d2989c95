package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

// DefaultElevenLabsURL is the ElevenLabs API base.
const DefaultElevenLabsURL = "https://api.elevenlabs.io"

const elevenLabsModel = "eleven_flash_v2_5"

// ElevenLabs streams speech from the ElevenLabs HTTP streaming endpoint.
type ElevenLabs struct {
	http    *resty.Client
	apiKey  string
	voiceID string
	log     zerolog.Logger
}

// NewElevenLabs returns a provider for voiceID. baseURL defaults to DefaultElevenLabsURL.
func NewElevenLabs(apiKey, voiceID, baseURL string, log zerolog.Logger) *ElevenLabs {
	if baseURL == "" {
		baseURL = DefaultElevenLabsURL
	}
	return &ElevenLabs{
		http:    resty.New().SetBaseURL(baseURL),
		apiKey:  apiKey,
		voiceID: voiceID,
		log:     log,
	}
}

func (e *ElevenLabs) Voices() []agent.Voice {
	if e.voiceID == "" {
		return nil
	}
	return []agent.Voice{{ID: e.voiceID, Name: "ElevenLabs (Premium)", Lang: "en", Default: true}}
}

// Stream posts text and forwards the pcm_48000 body as it arrives.
func (e *ElevenLabs) Stream(ctx context.Context, voice, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if voice == "" {
			voice = e.voiceID
		}
		if e.apiKey == "" || voice == "" {
			errCh <- fmt.Errorf("elevenlabs: %w", ErrMissingAPIKey)
			return
		}
		if err := e.httpStream(ctx, voice, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabs) httpStream(ctx context.Context, voice, text string, pcmCh chan<- []byte) error {
	body := map[string]any{
		"model_id": elevenLabsModel,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetHeader("Content-Type", "application/json").
		SetPathParam("voice", voice).
		SetQueryParams(map[string]string{
			"model_id":                   elevenLabsModel,
			"output_format":              "pcm_48000",
			"optimize_streaming_latency": "2",
		}).
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/v1/text-to-speech/{voice}/stream")
	if err != nil {
		return fmt.Errorf("elevenlabs: stream request: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		b, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode(), string(b))
	}

	chunk := make([]byte, 4096)
	first := true
	for {
		n, rerr := raw.Read(chunk)
		if n > 0 {
			if first {
				e.log.Debug().Int("bytes", n).Msg("elevenlabs audio stream started")
				first = false
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("elevenlabs: read stream: %w", rerr)
		}
	}
}
