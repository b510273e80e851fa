package prompt

import (
	"fmt"
	"strconv"
	"strings"
)

// Flow selects one of the three batch shapes.
type Flow string

const (
	FlowPortfolio Flow = "portfolio"
	FlowMagic     Flow = "magic"
	FlowFounders  Flow = "founders"
)

func ParseFlow(value string) (Flow, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "portfolio", "studio":
		return FlowPortfolio, true
	case "magic", "editor":
		return FlowMagic, true
	case "founders", "duo":
		return FlowFounders, true
	}
	return "", false
}

const (
	// HeroLensIndex is the lens replaced by a product shot when an object image is supplied.
	HeroLensIndex = 4

	FoundersAspectRatio = "16:9"
	FounderBInstruction = "Use this image as Subject B."

	heroLens            = "Product Feature Macro: Hero shot of the reference object/product in focus"
	objectIntegrated    = "Use the second image as a reference object integrated naturally into the scene."
	objectHeroProduct   = "This is the HERO PRODUCT. Render it with extreme detail, placed prominently in the composition. The main subject should be secondary (blurred or interacting with it)."
	directiveProduct    = "Focus primarily on the inserted object."
	directiveConsistent = "Keep the subject consistent."
)

// Inputs carries the flow-specific extras. Only the magic flow reads them.
type Inputs struct {
	Instruction string
	Adjustments string
	ProductShot bool
}

// Build returns the prompt text for one generation call.
func Build(flow Flow, theme Theme, in Inputs) string {
	var b strings.Builder
	switch flow {
	case FlowMagic:
		directive := directiveConsistent
		if in.ProductShot {
			directive = directiveProduct
		}
		b.WriteString("ROLE: Creative Director.\n")
		fmt.Fprintf(&b, "TASK: Edit the image based on: \"%s\".\n", in.Instruction)
		b.WriteString("SPECIFICATION:\n")
		fmt.Fprintf(&b, "- Lens/Angle: %s.\n", theme.Description)
		fmt.Fprintf(&b, "- Adjustments: %s.\n", in.Adjustments)
		b.WriteString("\nDirectives:\n")
		fmt.Fprintf(&b, "1. Change the perspective to match the '%s'.\n", theme.Description)
		fmt.Fprintf(&b, "2. %s\n", directive)
		b.WriteString("3. Ensure photorealistic commercial quality.")
	case FlowFounders:
		b.WriteString("Task: Create a composite image of two people together.\n")
		b.WriteString("Subject A: From Image 1.\n")
		b.WriteString("Subject B: From Image 2.\n")
		fmt.Fprintf(&b, "Setting: %s.\n", theme.Description)
		b.WriteString("\nInstructions:\n")
		b.WriteString("- Combine Subject A and Subject B into the same scene.\n")
		b.WriteString("- Ensure lighting matches the Setting.\n")
		b.WriteString("- Maintain resemblance of both subjects.\n")
		b.WriteString("- High-quality corporate photography.")
	default:
		b.WriteString("Task: Edit the input image to change the background and lighting.\n")
		fmt.Fprintf(&b, "Target Style: %s.\n", theme.Description)
		b.WriteString("Instructions:\n")
		b.WriteString("- Keep the person from the original photo.\n")
		b.WriteString("- Replace the background completely to match the Target Style.\n")
		b.WriteString("- Update the lighting to match the Target Style.\n")
		b.WriteString("- If the style specifies clothes, change the outfit.\n")
		b.WriteString("- Photorealistic result.")
	}
	return b.String()
}

// MagicLenses returns the lens catalog, with the hero lens swapped in when an
// object image accompanies the request and the catalog is long enough.
func MagicLenses(withObject bool) []Theme {
	lenses := EditorLenses()
	if withObject && HeroLensIndex < len(lenses) {
		lenses[HeroLensIndex] = NewTheme(heroLens)
	}
	return lenses
}

// IsProductShot reports whether item i of a magic batch is the hero shot.
func IsProductShot(withObject bool, i, total int) bool {
	return withObject && i == HeroLensIndex && HeroLensIndex < total
}

func ObjectInstruction(productShot bool) string {
	if productShot {
		return objectHeroProduct
	}
	return objectIntegrated
}

// Simplify keeps the text before the first sentence boundary.
func Simplify(prompt string) string {
	before, _, _ := strings.Cut(prompt, ".")
	return before
}

// WithPose appends a pose request to an existing instruction.
func WithPose(instruction, pose string) string {
	clean := strings.TrimSpace(instruction)
	pose = strings.TrimSpace(pose)
	if pose == "" {
		return clean
	}
	if clean == "" {
		return "Change pose to: " + pose
	}
	return clean + ". Change pose to: " + pose
}

func NormalizeAspectRatio(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", a, b)
}
