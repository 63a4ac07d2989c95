package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/agent"
	"github.com/JohnHCunningham/housing-website/internal/metrics"
	"github.com/JohnHCunningham/housing-website/internal/tts"
)

// micSampleRate is the PCM rate clients stream to a server recognizer.
const micSampleRate = 16000

const (
	helloTimeout = 10 * time.Second
	writeTimeout = 10 * time.Second
	maxFrameSize = 1 << 20
)

var errExpectedHello = errors.New("expected hello")

// PCMRecognizer is a server-side recognizer fed with client microphone audio.
type PCMRecognizer interface {
	agent.Recognizer
	SendPCM16KLE(pcm []byte) error
}

// Options configures the voice channel.
type Options struct {
	Assistant   agent.Assistant
	Context     agent.SystemContext
	ContextWait time.Duration
	// NewRecognizer builds a recognizer for a client without speech input.
	// Nil disables server-side recognition.
	NewRecognizer func() PCMRecognizer
	// Speech synthesizes for clients without speech output. Nil disables it.
	Speech tts.Provider
	// AllowedOrigins restricts browser origins; empty or "*" allows any.
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Handler upgrades connections and runs one conversation engine per socket.
type Handler struct {
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(opts Options) *Handler {
	h := &Handler{opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  65536,
		WriteBufferSize: 65536,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register mounts the channel on path.
func (h *Handler) Register(e *echo.Echo, path string) {
	e.GET(path, echo.WrapHandler(h))
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn().Err(err).Msg("voice channel upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxFrameSize)

	id := uuid.NewString()
	s := &session{
		id:   id,
		conn: conn,
		log:  h.opts.Logger.With().Str("session", id).Logger(),
	}

	hello, err := s.readHello()
	if err != nil {
		s.log.Debug().Err(err).Msg("voice channel closed before hello")
		_ = s.write(errorMessage{Type: typeError, Message: err.Error()})
		return
	}

	rec, syn, ready := h.adapters(s, hello)
	if err := s.write(ready); err != nil {
		return
	}

	metrics.VoiceSessionsActive.Inc()
	defer metrics.VoiceSessionsActive.Dec()
	s.log.Info().Bool("speech_input", ready.SpeechInput).Bool("speech_output", ready.SpeechOutput).Msg("voice session started")

	s.engine = agent.New(agent.Options{
		Recognizer:  rec,
		Synthesizer: syn,
		Assistant:   h.opts.Assistant,
		Context:     h.opts.Context,
		ContextWait: h.opts.ContextWait,
		Events:      s.events(),
		Logger:      s.log,
	})
	defer func() {
		s.engine.Close()
		if s.pcm != nil {
			_ = s.pcm.Stop()
		}
		s.log.Info().Msg("voice session closed")
	}()

	s.readLoop()
}

// adapters picks browser adapters for what the client can do itself and
// server adapters for the rest, when configured.
func (h *Handler) adapters(s *session, hello clientMessage) (agent.Recognizer, agent.Synthesizer, readyMessage) {
	var (
		rec agent.Recognizer
		syn agent.Synthesizer
	)
	ready := readyMessage{Type: typeReady, SessionID: s.id}

	switch {
	case hello.SpeechInput:
		s.remoteRec = &remoteRecognizer{send: s.write}
		rec = s.remoteRec
	case h.opts.NewRecognizer != nil:
		if p := h.opts.NewRecognizer(); p != nil {
			s.pcm = p
			rec = &serverRecognizer{inner: p, send: s.write}
			ready.InputSampleRate = micSampleRate
		}
	}

	switch {
	case hello.SpeechOutput:
		s.remoteSyn = &remoteSynthesizer{send: s.write}
		s.remoteSyn.setVoices(hello.Voices)
		syn = s.remoteSyn
	case h.opts.Speech != nil:
		syn = tts.NewSynthesizer(h.opts.Speech, s.writeBinary, s.log)
		ready.OutputSampleRate = tts.SampleRate
	}

	caps := agent.Negotiate(rec, syn)
	ready.SpeechInput, ready.SpeechOutput = caps.SpeechInput, caps.SpeechOutput
	return rec, syn, ready
}

type session struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	engine    *agent.Engine
	remoteRec *remoteRecognizer
	remoteSyn *remoteSynthesizer
	pcm       PCMRecognizer
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) writeBinary(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *session) readHello() (clientMessage, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return clientMessage{}, err
	}
	var m clientMessage
	if mt != websocket.TextMessage || json.Unmarshal(data, &m) != nil || m.Type != typeHello {
		return clientMessage{}, errExpectedHello
	}
	return m, nil
}

func (s *session) events() agent.Events {
	return agent.Events{
		OnStatusChange: func(st agent.Status) {
			_ = s.write(statusMessage{Type: typeStatus, Status: st.String()})
		},
		OnTranscript: func(text string, final bool) {
			_ = s.write(transcriptMessage{Type: typeTranscript, Text: text, Final: final})
		},
		OnResponse: func(text string) {
			_ = s.write(textMessage{Type: typeResponse, Text: text})
		},
		OnError: func(msg string) {
			_ = s.write(errorMessage{Type: typeError, Message: msg})
		},
	}
}

func (s *session) readLoop() {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("voice channel read")
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if s.pcm != nil {
				if err := s.pcm.SendPCM16KLE(data); err != nil {
					s.log.Trace().Err(err).Msg("microphone frame dropped")
				}
			}
		case websocket.TextMessage:
			var m clientMessage
			if err := json.Unmarshal(data, &m); err != nil {
				s.log.Debug().Err(err).Msg("undecodable client message")
				continue
			}
			s.dispatch(m)
		}
	}
}

func (s *session) dispatch(m clientMessage) {
	switch m.Type {
	case typeHello, typeVoices:
		if s.remoteSyn != nil {
			s.remoteSyn.setVoices(m.Voices)
		}
	case typeStart:
		s.engine.StartListening()
	case typeStop:
		s.engine.StopListening()
	case typeStopSpeaking:
		s.engine.StopSpeaking()
	case typeReset:
		s.engine.ResetConversation()
	case typeText:
		s.engine.HandleFinalTranscript(m.Text)
	case typeSend:
		s.engine.SendToAssistant()
	case typeRecognition:
		if s.remoteRec != nil {
			s.remoteRec.deliver(m)
		}
	case typeSynthesis:
		if s.remoteSyn != nil {
			s.remoteSyn.deliver(m)
		}
	default:
		s.log.Debug().Str("type", m.Type).Msg("unknown client message")
	}
}

// serverRecognizer tells the client when to stream microphone audio.
type serverRecognizer struct {
	inner PCMRecognizer
	send  func(v any) error
}

func (r *serverRecognizer) Start(ctx context.Context, emit func(agent.RecognitionEvent)) error {
	err := r.inner.Start(ctx, func(ev agent.RecognitionEvent) {
		if ev.Kind == agent.RecognitionError || ev.Kind == agent.RecognitionEnded || (ev.Kind == agent.RecognitionResult && ev.Final) {
			_ = r.send(controlMessage{Type: typeRecognitionStop})
		}
		emit(ev)
	})
	if err != nil {
		return err
	}
	_ = r.send(controlMessage{Type: typeRecognitionStart})
	return nil
}

func (r *serverRecognizer) Stop() error { return r.inner.Stop() }
