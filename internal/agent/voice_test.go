package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVoice(t *testing.T) {
	t.Run("prefers enhanced english", func(t *testing.T) {
		v := SelectVoice([]Voice{
			{Name: "Samantha", Lang: "en-US"},
			{Name: "Amélie (Enhanced)", Lang: "fr-CA"},
			{Name: "Daniel (Enhanced)", Lang: "en-GB"},
		})
		require.NotNil(t, v)
		assert.Equal(t, "Daniel (Enhanced)", v.Name)
	})

	t.Run("markers are case insensitive", func(t *testing.T) {
		v := SelectVoice([]Voice{{Name: "Other", Lang: "en"}, {Name: "Microsoft Aria Online (NATURAL)", Lang: "EN-us"}})
		require.NotNil(t, v)
		assert.Equal(t, "Microsoft Aria Online (NATURAL)", v.Name)
	})

	t.Run("falls back to any english", func(t *testing.T) {
		v := SelectVoice([]Voice{{Name: "Anna", Lang: "de-DE"}, {Name: "Fred", Lang: "en-US"}})
		require.NotNil(t, v)
		assert.Equal(t, "Fred", v.Name)
	})

	t.Run("nil without english", func(t *testing.T) {
		assert.Nil(t, SelectVoice([]Voice{{Name: "Anna (Premium)", Lang: "de-DE"}}))
		assert.Nil(t, SelectVoice(nil))
	})
}

func TestNegotiate(t *testing.T) {
	assert.Equal(t, Capabilities{}, Negotiate(nil, nil))
	c := Negotiate(&fakeRecognizer{}, nil)
	assert.True(t, c.SpeechInput)
	assert.False(t, c.Supported())
	assert.True(t, Negotiate(&fakeRecognizer{}, &fakeSynthesizer{}).Supported())
}
