package agent

import "strings"

var preferredVoiceMarkers = []string{"natural", "premium", "enhanced"}

// SelectVoice prefers an English voice whose name marks it as natural,
// premium or enhanced, then any English voice. It returns nil when neither
// exists so the synthesizer uses its default.
func SelectVoice(voices []Voice) *Voice {
	for i := range voices {
		if isEnglish(voices[i].Lang) && isPreferred(voices[i].Name) {
			return &voices[i]
		}
	}
	for i := range voices {
		if isEnglish(voices[i].Lang) {
			return &voices[i]
		}
	}
	return nil
}

func isEnglish(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "en")
}

func isPreferred(name string) bool {
	n := strings.ToLower(name)
	for _, m := range preferredVoiceMarkers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}
