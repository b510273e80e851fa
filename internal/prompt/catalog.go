package prompt

import "strings"

type NamedOption struct {
	Key  string
	Name string
}

// Theme is one scene description driving a single generation call.
type Theme struct {
	Label       string
	Description string
}

// NewTheme labels a catalog entry with the text before its first colon.
func NewTheme(entry string) Theme {
	entry = strings.TrimSpace(entry)
	label := entry
	if before, _, ok := strings.Cut(entry, ":"); ok {
		label = strings.TrimSpace(before)
	}
	return Theme{Label: label, Description: entry}
}

var classicThemes = []string{
	"Professional Headshot: Seamless light grey paper background, wearing sharp formal business attire, soft even lighting",
	"Dramatic Portrait: Dark brown textured canvas background, wearing a black turtleneck, moody Rembrandt lighting",
	"High Fashion Editorial: Pure white infinity cyclorama background, wearing a stylish colorful blazer, high-key lighting",
	"Casual Lifestyle: Beige textured plaster wall background, wearing a denim jacket and white t-shirt, relaxed pose sitting on a stool",
	"Cinematic Close-up: 85mm lens, dark blurred studio background, detailed facial features, shallow depth of field (bokeh)",
	"Film Noir: Shadowy blinds pattern on background, wearing a classic trench coat, dramatic black and white high contrast",
}

var startupThemes = []string{
	"Modern Open Office: Leaning against a glass wall in a high-tech workspace, smart casual blazer, bright daylight",
	"Co-working Lounge: Relaxed confident pose on a modern sofa, laptop visible in background, blurred office depth of field",
	"Keynote Stage: Spotlight on subject, dark blurred audience background, wearing a modern suit, gesture of public speaking",
	"Urban Rooftop: City skyline background at golden hour, arms folded confidently, wearing a tech hoodie and jacket",
	"Minimalist Meeting Room: Whiteboard background with diagrams, standing pose, gesture of explaining idea, crisp lighting",
	"Coffee Shop Strategy: Window seat with city reflection, natural soft light, looking out thoughtfully, holding a notebook",
}

var tropicalThemes = []string{
	"White Sand Beach: Walking towards camera, turquoise water background, wearing light linen outfit, bright sunny lighting",
	"Jungle Waterfall: Dappled sunlight through palm leaves, adventurous standing pose, lush green background",
	"Luxury Resort Pool: Infinity pool edge at sunset, elegant summer evening wear, warm golden lighting, relaxed pose",
	"Bamboo Forest: Path through tall bamboo, soft diffused zen lighting, yoga or meditation inspired standing pose",
	"Wooden Dock: Wide angle shot on a pier over water, breezy atmosphere, blue sky background, casual summer clothes",
	"Tiki Torch Night: Evening beach setting with firelight glow, dramatic warm shadows, festive tropical attire",
}

var creativeThemes = []string{
	"Double Exposure with Nature",
	"Cyberpunk Neon Studio",
	"Pop Art Illustration Style",
	"Vintage Polaroid Aesthetic",
	"Oil Painting Portrait",
	"Futuristic Hologram",
}

var editorLenses = []string{
	"35mm Wide Angle Editorial",
	"85mm Portrait Lens (Bokeh)",
	"Low Angle Hero Shot",
	"Overhead High Angle",
	"Cinematic Close-up Detail",
	"Side Profile Silhouette",
}

var founderThemes = []string{
	"Executive Studio Power Duo: Seamless charcoal grey background, both subjects standing side-by-side with confident folded arms, matching professional business attire, sharp studio lighting",
	"Modern Tech Office: Blurred glass walls and open plan office in background, subjects collaborating over a tablet or document, dynamic interaction, natural daylight",
	"Urban Startup Lifestyle: City skyline depth of field background (bokeh), subjects walking or standing casually, smart-casual tech hoodies/blazers, golden hour lighting",
}

var poses = []string{
	"Slightly turned, 3/4 view",
	"Side profile view",
	"Walking towards camera",
	"Leaning against a wall",
	"Arms crossed confidently",
	"Hands in pockets relaxed",
	"Looking over shoulder",
	"Sitting on a stool",
}

var aspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}

const DefaultStyle = "classic"

var portfolioStyles = map[string]struct {
	name    string
	entries []string
}{
	"classic":  {name: "Classic Studio", entries: classicThemes},
	"startup":  {name: "Startup Founder", entries: startupThemes},
	"tropical": {name: "Tropical Escape", entries: tropicalThemes},
	"creative": {name: "Creative Art", entries: creativeThemes},
}

func Styles() []NamedOption {
	order := []string{"classic", "startup", "tropical", "creative"}

	out := make([]NamedOption, 0, len(order))
	for _, key := range order {
		if s, ok := portfolioStyles[key]; ok {
			out = append(out, NamedOption{Key: key, Name: s.name})
		}
	}
	return out
}

// PortfolioThemes returns the catalog for a portfolio style key.
func PortfolioThemes(style string) ([]Theme, bool) {
	s, ok := portfolioStyles[strings.ToLower(strings.TrimSpace(style))]
	if !ok {
		return nil, false
	}
	return themes(s.entries), true
}

func EditorLenses() []Theme  { return themes(editorLenses) }
func FounderThemes() []Theme { return themes(founderThemes) }

func Poses() []string {
	return append([]string(nil), poses...)
}

func AspectRatios() []string {
	return append([]string(nil), aspectRatios...)
}

func themes(entries []string) []Theme {
	out := make([]Theme, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewTheme(e))
	}
	return out
}

const (
	ModelDefault   = "gemini-2.5-flash-image"
	ModelFluxStyle = "flux-style"
)

func Models() []NamedOption {
	return []NamedOption{
		{Key: ModelDefault, Name: "Gemini 2.5 Flash Image"},
		{Key: ModelFluxStyle, Name: "Flux Style"},
	}
}
