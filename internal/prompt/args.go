package prompt

import (
	"strconv"
	"strings"
)

// Options is the full set of user choices behind one batch.
type Options struct {
	Flow        Flow
	Style       string
	Model       string
	AspectRatio string
	Adjustments Adjustments
	Instruction string
}

func DefaultOptions() Options {
	return Options{
		Flow:        FlowPortfolio,
		Style:       DefaultStyle,
		Model:       ModelDefault,
		AspectRatio: "1:1",
		Adjustments: NeutralAdjustments(),
	}
}

// ParseArgs reads command arguments such as "startup flux ar=3:4 warmth=80 make it rain".
// Unrecognised tokens become the free-text instruction.
func ParseArgs(raw string, defaults Options) Options {
	opts := defaults
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts
	}

	var custom []string
	for _, tok := range strings.Fields(raw) {
		orig := tok
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}

		switch tok {
		case "flux", ModelFluxStyle:
			opts.Model = ModelFluxStyle
			continue
		case "gemini", "default", ModelDefault:
			opts.Model = ModelDefault
			continue
		}

		if _, ok := portfolioStyles[tok]; ok {
			opts.Style = tok
			continue
		}
		if strings.HasPrefix(tok, "style=") {
			style := strings.TrimPrefix(tok, "style=")
			if _, ok := portfolioStyles[style]; ok {
				opts.Style = style
				continue
			}
		}
		if key, value, ok := strings.Cut(tok, "="); ok {
			if applySlider(&opts.Adjustments, key, value) {
				continue
			}
			if key == "ar" || key == "aspect" {
				if norm := NormalizeAspectRatio(value); norm != "" {
					opts.AspectRatio = norm
					continue
				}
			}
		}
		if norm := NormalizeAspectRatio(tok); norm != "" {
			opts.AspectRatio = norm
			continue
		}

		custom = append(custom, orig)
	}

	if text := strings.TrimSpace(strings.Join(custom, " ")); text != "" {
		opts.Instruction = text
	}
	return opts
}

func applySlider(adj *Adjustments, key, value string) bool {
	n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil {
		return false
	}
	n = clampPercent(n)

	switch key {
	case "brightness", "b":
		adj.Brightness = n
	case "contrast", "c":
		adj.Contrast = n
	case "warmth", "w":
		adj.Warmth = n
	default:
		return false
	}
	return true
}
