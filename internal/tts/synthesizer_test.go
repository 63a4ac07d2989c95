package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

type fakeProvider struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	block  bool
	voices []string
}

func (f *fakeProvider) Voices() []agent.Voice {
	return []agent.Voice{{ID: "v1", Name: "One (Natural)", Lang: "en-US"}}
}

func (f *fakeProvider) Stream(ctx context.Context, voice, text string) (<-chan []byte, <-chan error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	block := f.block
	f.mu.Unlock()
	pcm := make(chan []byte, len(f.frames))
	errs := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errs)
		for _, fr := range f.frames {
			pcm <- fr
		}
		if block {
			<-ctx.Done()
			return
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return pcm, errs
}

type sinkRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *sinkRecorder) write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, pcm)
	return nil
}

func (r *sinkRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type eventLog struct {
	mu     sync.Mutex
	events []agent.SynthesisEvent
}

func (l *eventLog) emit(ev agent.SynthesisEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) list() []agent.SynthesisEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]agent.SynthesisEvent(nil), l.events...)
}

func TestSynthesizer_StreamsToSinkAndEnds(t *testing.T) {
	p := &fakeProvider{frames: [][]byte{{1, 0}, {2, 0}}}
	sink := &sinkRecorder{}
	s := NewSynthesizer(p, sink.write, zerolog.Nop())
	events := &eventLog{}

	err := s.Speak(context.Background(), agent.Utterance{Text: "hello", Voice: &agent.Voice{ID: "v1"}, Volume: 1}, events.emit)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(events.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, agent.SynthesisStarted, events.list()[0].Kind)
	assert.Equal(t, agent.SynthesisEnded, events.list()[1].Kind)
	assert.Equal(t, [][]byte{{1, 0}, {2, 0}}, sink.frames)
	assert.Equal(t, []string{"v1"}, p.voices)
}

func TestSynthesizer_ProviderErrorFails(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	s := NewSynthesizer(p, (&sinkRecorder{}).write, zerolog.Nop())
	events := &eventLog{}

	require.NoError(t, s.Speak(context.Background(), agent.Utterance{Text: "hello"}, events.emit))
	require.Eventually(t, func() bool { return len(events.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, agent.SynthesisEvent{Kind: agent.SynthesisFailed, Error: "quota exceeded"}, events.list()[1])
}

func TestSynthesizer_SinkErrorFails(t *testing.T) {
	p := &fakeProvider{frames: [][]byte{{1, 0}}}
	sink := &sinkRecorder{err: errors.New("connection closed")}
	s := NewSynthesizer(p, sink.write, zerolog.Nop())
	events := &eventLog{}

	require.NoError(t, s.Speak(context.Background(), agent.Utterance{Text: "hello"}, events.emit))
	require.Eventually(t, func() bool { return len(events.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, agent.SynthesisFailed, events.list()[1].Kind)
}

func TestSynthesizer_CancelSuppressesEvents(t *testing.T) {
	p := &fakeProvider{frames: [][]byte{{1, 0}}, block: true}
	sink := &sinkRecorder{}
	s := NewSynthesizer(p, sink.write, zerolog.Nop())
	events := &eventLog{}

	require.NoError(t, s.Speak(context.Background(), agent.Utterance{Text: "hello"}, events.emit))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []agent.SynthesisEvent{{Kind: agent.SynthesisStarted}}, events.list())

	// a following utterance works without residue
	p.mu.Lock()
	p.block = false
	p.mu.Unlock()
	require.NoError(t, s.Speak(context.Background(), agent.Utterance{Text: "again"}, events.emit))
	require.Eventually(t, func() bool { return len(events.list()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, agent.SynthesisEnded, events.list()[2].Kind)
}

func TestSynthesizer_RejectsEmptyText(t *testing.T) {
	s := NewSynthesizer(&fakeProvider{}, (&sinkRecorder{}).write, zerolog.Nop())
	assert.ErrorIs(t, s.Speak(context.Background(), agent.Utterance{Text: "  "}, func(agent.SynthesisEvent) {}), ErrEmptyText)
}

func TestApplyVolume(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(1000)))
	neg := int16(-1000)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(neg))

	assert.Equal(t, pcm, applyVolume(pcm, 1))
	assert.Equal(t, pcm, applyVolume(pcm, 0))

	half := applyVolume(pcm, 0.5)
	assert.Equal(t, int16(500), int16(binary.LittleEndian.Uint16(half[0:])))
	assert.Equal(t, int16(-500), int16(binary.LittleEndian.Uint16(half[2:])))
}

func TestPlaybackDuration(t *testing.T) {
	assert.Equal(t, time.Second, playbackDuration(SampleRate*2))
	assert.Equal(t, time.Duration(0), playbackDuration(0))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderOptions{Name: "deepgram", Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(ProviderOptions{Name: "Deepgram", DeepgramKey: "k", Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &Deepgram{}, p)

	p, err = NewProvider(ProviderOptions{Name: "elevenlabs", ElevenLabsKey: "k", ElevenLabsVoiceID: "v", Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &ElevenLabs{}, p)

	_, err = NewProvider(ProviderOptions{Name: "polly"})
	assert.Error(t, err)
}
