package agent

// Trigger is an input to the status state machine.
type Trigger int

const (
	TriggerListen         Trigger = iota // capture requested and started
	TriggerFinal                         // a non-empty final transcript was committed
	TriggerSend                          // the current history is re-sent
	TriggerCaptureError                  // recognition error or failure to start
	TriggerCaptureEnd                    // capture ended without a final result
	TriggerSpeak                         // playback of caller-supplied text begins
	TriggerReply                         // playback of the assistant reply begins
	TriggerReplyFailed                   // chat request failed
	TriggerReplyUnspoken                 // reply shown but no speech output available
	TriggerPlaybackDone                  // playback finished
	TriggerPlaybackFailed                // playback errored
	TriggerStopSpeaking                  // playback stopped on request
	TriggerReset                         // conversation reset
)

func (t Trigger) String() string {
	switch t {
	case TriggerListen:
		return "listen"
	case TriggerFinal:
		return "final"
	case TriggerSend:
		return "send"
	case TriggerCaptureError:
		return "capture-error"
	case TriggerCaptureEnd:
		return "capture-end"
	case TriggerSpeak:
		return "speak"
	case TriggerReply:
		return "reply"
	case TriggerReplyFailed:
		return "reply-failed"
	case TriggerReplyUnspoken:
		return "reply-unspoken"
	case TriggerPlaybackDone:
		return "playback-done"
	case TriggerPlaybackFailed:
		return "playback-failed"
	case TriggerStopSpeaking:
		return "stop-speaking"
	case TriggerReset:
		return "reset"
	default:
		return "unknown"
	}
}

// transitions is the complete status table. A trigger missing from a row is
// not valid in that state and leaves the status unchanged.
var transitions = map[Status]map[Trigger]Status{
	StatusIdle: {
		TriggerListen:       StatusListening,
		TriggerFinal:        StatusThinking,
		TriggerSend:         StatusThinking,
		TriggerSpeak:        StatusSpeaking,
		TriggerCaptureError: StatusIdle,
		TriggerReset:        StatusIdle,
	},
	StatusListening: {
		TriggerFinal:        StatusThinking,
		TriggerCaptureError: StatusIdle,
		TriggerCaptureEnd:   StatusIdle,
		TriggerSpeak:        StatusSpeaking,
		TriggerReset:        StatusIdle,
	},
	StatusThinking: {
		TriggerReply:         StatusSpeaking,
		TriggerReplyFailed:   StatusIdle,
		TriggerReplyUnspoken: StatusIdle,
		TriggerReset:         StatusIdle,
	},
	StatusSpeaking: {
		TriggerListen:         StatusListening,
		TriggerFinal:          StatusThinking,
		TriggerSpeak:          StatusSpeaking,
		TriggerCaptureError:   StatusIdle,
		TriggerPlaybackDone:   StatusIdle,
		TriggerPlaybackFailed: StatusIdle,
		TriggerStopSpeaking:   StatusIdle,
		TriggerReset:          StatusIdle,
	},
}

// Next returns the status reached from s on t, and whether t is valid in s.
func Next(s Status, t Trigger) (Status, bool) {
	row, ok := transitions[s]
	if !ok {
		return s, false
	}
	next, ok := row[t]
	if !ok {
		return s, false
	}
	return next, true
}
