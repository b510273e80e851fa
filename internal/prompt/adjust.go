package prompt

import "strings"

const (
	adjustHigh = 60
	adjustLow  = 40
)

// Adjustments holds the three 0..100 sliders of the magic editor.
type Adjustments struct {
	Brightness int
	Contrast   int
	Warmth     int
}

func NeutralAdjustments() Adjustments {
	return Adjustments{Brightness: 50, Contrast: 50, Warmth: 50}
}

func (a Adjustments) Phrases() []string {
	var out []string
	out = appendPhrase(out, a.Brightness, "Bright high-key lighting", "Dark moody low-key lighting")
	out = appendPhrase(out, a.Contrast, "High dramatic contrast", "Soft muted contrast")
	out = appendPhrase(out, a.Warmth, "Warm golden color temperature", "Cool blue cinematic tones")
	return out
}

func (a Adjustments) String() string {
	return strings.Join(a.Phrases(), ", ")
}

// Clamp limits every slider to 0..100.
func (a Adjustments) Clamp() Adjustments {
	return Adjustments{
		Brightness: clampPercent(a.Brightness),
		Contrast:   clampPercent(a.Contrast),
		Warmth:     clampPercent(a.Warmth),
	}
}

func appendPhrase(out []string, v int, high, low string) []string {
	switch {
	case v > adjustHigh:
		return append(out, high)
	case v < adjustLow:
		return append(out, low)
	}
	return out
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
