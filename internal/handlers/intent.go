package handlers

import (
	"strings"

	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/session"
)

const awaitInstruction = "instruction"

// captionIntent is what a photo caption asks for.
type captionIntent struct {
	Slot        session.Slot
	Flow        prompt.Flow
	Instruction string
}

// parseCaption reads captions such as "object", "founders" or
// "magic make it rain". Anything after the keyword is kept as an instruction.
func parseCaption(caption string) captionIntent {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return captionIntent{}
	}

	first, rest, _ := strings.Cut(caption, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(strings.Trim(first, ".,:;!")) {
	case "object", "product":
		return captionIntent{Slot: session.SlotObject, Instruction: rest}
	}
	switch strings.ToLower(caption) {
	case "a", "founder a":
		return captionIntent{Slot: session.SlotFounderA, Flow: prompt.FlowFounders}
	case "b", "founder b":
		return captionIntent{Slot: session.SlotFounderB, Flow: prompt.FlowFounders}
	}
	if flow, ok := prompt.ParseFlow(strings.Trim(first, ".,:;!")); ok {
		return captionIntent{Flow: flow, Instruction: rest}
	}
	return captionIntent{Instruction: caption}
}

// pickSlot decides where an incoming photo goes.
func pickSlot(s session.Session, in captionIntent) session.Slot {
	if in.Slot != "" {
		return in.Slot
	}
	if slot, ok := session.ParseSlot(s.Wizard.Awaiting); ok {
		return slot
	}
	if s.Settings.Flow == prompt.FlowFounders {
		if !s.FounderA.IsZero() && s.FounderB.IsZero() {
			return session.SlotFounderB
		}
		return session.SlotFounderA
	}
	return session.SlotMain
}

// missingInput names the first input the selected flow still needs, or "".
func missingInput(s session.Session) string {
	switch s.Settings.Flow {
	case prompt.FlowFounders:
		if s.FounderA.IsZero() {
			return string(session.SlotFounderA)
		}
		if s.FounderB.IsZero() {
			return string(session.SlotFounderB)
		}
	case prompt.FlowMagic:
		if s.Main.IsZero() {
			return string(session.SlotMain)
		}
		if strings.TrimSpace(s.Settings.Instruction) == "" && strings.TrimSpace(s.Pose) == "" {
			return awaitInstruction
		}
	default:
		if s.Main.IsZero() {
			return string(session.SlotMain)
		}
	}
	return ""
}

func askFor(missing string) string {
	switch missing {
	case string(session.SlotFounderA):
		return "📷 Send a photo of the first founder (Subject A)."
	case string(session.SlotFounderB):
		return "📷 Now send a photo of the second founder (Subject B)."
	case string(session.SlotObject):
		return "📷 Send a photo of the object or product to feature."
	case awaitInstruction:
		return "📝 Describe your edit, e.g. \"cyberpunk city at night\"."
	}
	return "📷 Send your main photo."
}

func slotName(slot session.Slot) string {
	switch slot {
	case session.SlotObject:
		return "reference object"
	case session.SlotFounderA:
		return "founder A"
	case session.SlotFounderB:
		return "founder B"
	}
	return "main image"
}
