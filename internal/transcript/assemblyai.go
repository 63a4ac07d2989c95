package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/agent"
)

// DefaultURL is the AssemblyAI v3 streaming endpoint.
const DefaultURL = "wss://streaming.assemblyai.com/v3/ws"

// SampleRate is the rate expected by SendPCM16KLE.
const SampleRate = 16000

// silenceThreshold is the inactivity window after which the latest partial
// is committed when the service never marks the turn as ended.
const silenceThreshold = 1500 * time.Millisecond

// continuationExtension is added when the last word suggests the speaker will go on.
const continuationExtension = 1200 * time.Millisecond

const (
	defaultNoSpeechTimeout = 8 * time.Second
	terminateTimeout       = 2 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("transcript: assemblyai api key is empty")
	ErrNotListening  = errors.New("transcript: no capture session")
)

// Options configures the AssemblyAI recognizer.
type Options struct {
	APIKey string
	// URL overrides DefaultURL.
	URL string
	// NoSpeechTimeout ends a session with a "no-speech" error when nothing
	// was transcribed in time.
	NoSpeechTimeout time.Duration
	Logger          zerolog.Logger
}

// AssemblyAI is an agent.Recognizer that streams 16 kHz PCM to AssemblyAI.
// Each Start opens a new streaming session; audio is fed with SendPCM16KLE.
type AssemblyAI struct {
	apiKey   string
	url      string
	noSpeech time.Duration
	dialer   websocket.Dialer
	log      zerolog.Logger

	mu         sync.Mutex
	sess       *session
	connecting bool
}

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var terminateMessage = []byte(`{"type":"Terminate"}`)

// New returns a recognizer. It does not connect until Start.
func New(opts Options) *AssemblyAI {
	u := opts.URL
	if u == "" {
		u = DefaultURL
	}
	noSpeech := opts.NoSpeechTimeout
	if noSpeech <= 0 {
		noSpeech = defaultNoSpeechTimeout
	}
	return &AssemblyAI{
		apiKey:   opts.APIKey,
		url:      u,
		noSpeech: noSpeech,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      opts.Logger,
	}
}

// Start opens a streaming session and emits RecognitionStarted.
func (a *AssemblyAI) Start(ctx context.Context, emit func(agent.RecognitionEvent)) error {
	if a.apiKey == "" {
		return ErrMissingAPIKey
	}
	// connecting reserves the single session slot while the handshake runs
	// unlocked, so audio and Stop callers never wait on the dial.
	a.mu.Lock()
	if a.sess != nil || a.connecting {
		a.mu.Unlock()
		return agent.ErrCaptureActive
	}
	a.connecting = true
	a.mu.Unlock()

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprint(SampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.url + "?" + params.Encode()

	conn, resp, err := a.dialer.DialContext(ctx, wsURL, http.Header{"Authorization": {a.apiKey}})
	if err != nil {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
		if resp != nil {
			a.log.Error().Int("status", resp.StatusCode).Msg("assemblyai handshake rejected")
		}
		return fmt.Errorf("transcript: connect assemblyai: %w", err)
	}

	s := &session{
		owner: a,
		conn:  conn,
		emit:  emit,
		log:   a.log,
		audio: make(chan []byte, 1000),
		stop:  make(chan struct{}),
	}
	a.mu.Lock()
	a.connecting = false
	a.sess = s
	a.mu.Unlock()
	emit(agent.RecognitionEvent{Kind: agent.RecognitionStarted})

	s.mu.Lock()
	s.lastVoice = time.Now()
	s.noSpeech = time.AfterFunc(a.noSpeech, func() {
		s.finish(agent.RecognitionEvent{Kind: agent.RecognitionError, Error: "no-speech"})
	})
	s.mu.Unlock()

	go s.readLoop()
	go s.writeLoop()
	return nil
}

// Stop asks the service to end the session. The session emits the pending
// transcript as final, or RecognitionEnded when nothing was heard.
func (a *AssemblyAI) Stop() error {
	s := a.current()
	if s == nil {
		return nil
	}
	s.terminate()
	return nil
}

// SendPCM16KLE queues one frame of 16-bit little-endian mono PCM at 16 kHz.
func (a *AssemblyAI) SendPCM16KLE(pcm []byte) error {
	s := a.current()
	if s == nil {
		return ErrNotListening
	}
	s.detectVoiceActivity(pcm)
	select {
	case <-s.stop:
		return ErrNotListening
	case s.audio <- pcm:
		return nil
	default:
		s.log.Debug().Msg("audio buffer full, dropping frame")
		return nil
	}
}

// Active reports whether a capture session is open.
func (a *AssemblyAI) Active() bool { return a.current() != nil }

func (a *AssemblyAI) current() *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

func (a *AssemblyAI) release(s *session) {
	a.mu.Lock()
	if a.sess == s {
		a.sess = nil
	}
	a.mu.Unlock()
}

type session struct {
	owner *AssemblyAI
	conn  *websocket.Conn
	emit  func(agent.RecognitionEvent)
	log   zerolog.Logger
	audio chan []byte
	stop  chan struct{}
	once  sync.Once

	writeMu sync.Mutex

	mu          sync.Mutex
	latest      string
	lastText    time.Time
	lastVoice   time.Time
	terminating bool
	silence     *time.Timer
	noSpeech    *time.Timer
}

// finish emits the terminal event of the session exactly once and tears it down.
func (s *session) finish(ev agent.RecognitionEvent) {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.silence != nil {
			s.silence.Stop()
		}
		if s.noSpeech != nil {
			s.noSpeech.Stop()
		}
		terminating := s.terminating
		s.terminating = true
		s.mu.Unlock()

		if !terminating {
			_ = s.write(websocket.TextMessage, terminateMessage)
		}
		_ = s.conn.Close()
		s.owner.release(s)
		s.emit(ev)
	})
}

func (s *session) terminate() {
	s.mu.Lock()
	if s.terminating {
		s.mu.Unlock()
		return
	}
	s.terminating = true
	s.mu.Unlock()

	if err := s.write(websocket.TextMessage, terminateMessage); err != nil {
		s.log.Debug().Err(err).Msg("terminate assemblyai session")
		s.finish(s.pending())
		return
	}
	time.AfterFunc(terminateTimeout, func() { s.finish(s.pending()) })
}

// pending is the terminal event for a session ended without end of turn:
// the last partial as a final result, or a plain end.
func (s *session) pending() agent.RecognitionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text := strings.TrimSpace(s.latest); text != "" {
		return agent.RecognitionEvent{Kind: agent.RecognitionResult, Text: text, Final: true}
	}
	return agent.RecognitionEvent{Kind: agent.RecognitionEnded}
}

func (s *session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(messageType, data)
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.stop:
			return
		case pcm := <-s.audio:
			if err := s.write(websocket.BinaryMessage, pcm); err != nil {
				s.log.Warn().Err(err).Msg("send audio to assemblyai")
				s.finish(agent.RecognitionEvent{Kind: agent.RecognitionError, Error: "network"})
				return
			}
		}
	}
}

func (s *session) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			s.mu.Lock()
			terminating := s.terminating
			s.mu.Unlock()
			if terminating {
				s.finish(s.pending())
			} else {
				s.log.Warn().Err(err).Msg("assemblyai connection lost")
				s.finish(agent.RecognitionEvent{Kind: agent.RecognitionError, Error: "network"})
			}
			return
		}
		s.processMessage(message)
	}
}

// processMessage handles the message types of the v3 streaming protocol.
func (s *session) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		s.log.Debug().Err(err).Msg("undecodable assemblyai message")
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Debug().Str("id", msg.ID).Time("expires_at", time.Unix(msg.ExpiresAt, 0)).Msg("assemblyai session began")
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Debug().Err(err).Msg("undecodable turn")
			return
		}
		s.onTurn(msg)
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Debug().
				Float64("audio_seconds", msg.AudioDurationSeconds).
				Float64("session_seconds", msg.SessionDurationSeconds).
				Msg("assemblyai session terminated")
		}
		s.finish(s.pending())
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		s.log.Warn().Str("error", msg.Error).Msg("assemblyai error")
		s.finish(agent.RecognitionEvent{Kind: agent.RecognitionError, Error: "network"})
	default:
		s.log.Debug().Str("type", base.Type).Msg("unknown assemblyai message")
	}
}

func (s *session) onTurn(msg turnMessage) {
	text := strings.TrimSpace(msg.Transcript)
	if text == "" {
		return
	}
	if msg.EndOfTurn {
		s.finish(agent.RecognitionEvent{Kind: agent.RecognitionResult, Text: text, Final: true})
		return
	}

	s.mu.Lock()
	s.latest = text
	s.lastText = time.Now()
	if s.noSpeech != nil {
		s.noSpeech.Stop()
	}
	if s.silence == nil {
		s.silence = time.AfterFunc(silenceThreshold, s.finalizeDueToSilence)
	} else {
		s.silence.Reset(silenceThreshold)
	}
	s.mu.Unlock()

	select {
	case <-s.stop:
	default:
		s.emit(agent.RecognitionEvent{Kind: agent.RecognitionResult, Text: text})
	}
}

// finalizeDueToSilence commits the latest partial once neither text nor voice
// energy arrived for the threshold, extended when the sentence looks unfinished.
func (s *session) finalizeDueToSilence() {
	s.mu.Lock()
	threshold := silenceThreshold
	if isContinuationLikely(s.latest) {
		threshold += continuationExtension
	}
	now := time.Now()
	sinceText, sinceVoice := now.Sub(s.lastText), now.Sub(s.lastVoice)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold - min(sinceText, sinceVoice)
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		s.silence.Reset(wait)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.finish(s.pending())
}

// detectVoiceActivity updates lastVoice if the frame carries voice energy.
func (s *session) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 1
	if len(pcm) > 3200 {
		step = 2
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	const voiceRMS = 250.0
	if math.Sqrt(sumSquares/float64(count)) >= voiceRMS {
		s.mu.Lock()
		s.lastVoice = time.Now()
		s.mu.Unlock()
	}
}

// isContinuationLikely reports whether the last word suggests the speaker
// will continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
