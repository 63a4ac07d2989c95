package realtime

import "github.com/JohnHCunningham/housing-website/internal/agent"

// Client to server message types.
const (
	typeHello        = "hello"
	typeVoices       = "voices"
	typeStart        = "start"
	typeStop         = "stop"
	typeStopSpeaking = "stop-speaking"
	typeReset        = "reset"
	typeText         = "text"
	typeSend         = "send"
	typeRecognition  = "recognition"
	typeSynthesis    = "synthesis"
)

// Server to client message types.
const (
	typeReady            = "ready"
	typeStatus           = "status"
	typeTranscript       = "transcript"
	typeResponse         = "response"
	typeError            = "error"
	typeRecognitionStart = "recognition-start"
	typeRecognitionStop  = "recognition-stop"
	typeSpeak            = "speak"
	typeCancelSpeech     = "cancel-speech"
)

// clientMessage is the union of every JSON frame a client may send.
type clientMessage struct {
	Type string `json:"type"`

	// hello
	SpeechInput  bool          `json:"speechInput"`
	SpeechOutput bool          `json:"speechOutput"`
	Voices       []agent.Voice `json:"voices"`

	// text, recognition
	Text  string `json:"text"`
	Final bool   `json:"final"`

	// recognition, synthesis
	Event string `json:"event"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

type readyMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"sessionId"`
	SpeechInput      bool   `json:"speechInput"`
	SpeechOutput     bool   `json:"speechOutput"`
	InputSampleRate  int    `json:"inputSampleRate,omitempty"`
	OutputSampleRate int    `json:"outputSampleRate,omitempty"`
}

type statusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type transcriptMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type speakMessage struct {
	Type   string  `json:"type"`
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

type controlMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}
