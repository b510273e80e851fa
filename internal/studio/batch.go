package studio

import (
	"fmt"
	"strings"

	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
)

// Result is one successful item: the theme label and the generated image.
type Result struct {
	Label string
	Image media.Asset
}

// Item is one fully prepared generation call.
type Item struct {
	Label                string
	Prompt               string
	Secondary            media.Asset
	SecondaryInstruction string
	AspectRatio          string
}

// Batch is an ordered list of items sharing a main image and model.
type Batch struct {
	Flow  prompt.Flow
	Model string
	Main  media.Asset
	Items []Item
}

type PortfolioRequest struct {
	Main  media.Asset
	Style string
	Model string
}

type MagicRequest struct {
	Main        media.Asset
	Object      media.Asset
	Instruction string
	Adjustments prompt.Adjustments
	AspectRatio string
	Model       string
}

type FoundersRequest struct {
	A     media.Asset
	B     media.Asset
	Model string
}

func PortfolioBatch(req PortfolioRequest) (Batch, error) {
	if req.Main.IsZero() {
		return Batch{}, &InputError{Message: "Please upload a main image."}
	}
	style := req.Style
	if style == "" {
		style = prompt.DefaultStyle
	}
	themes, ok := prompt.PortfolioThemes(style)
	if !ok {
		return Batch{}, &InputError{Message: fmt.Sprintf("Unknown photoshoot style %q.", req.Style)}
	}

	items := make([]Item, 0, len(themes))
	for _, th := range themes {
		items = append(items, Item{
			Label:  th.Label,
			Prompt: prompt.Build(prompt.FlowPortfolio, th, prompt.Inputs{}),
		})
	}
	return Batch{Flow: prompt.FlowPortfolio, Model: req.Model, Main: req.Main.Clone(), Items: items}, nil
}

func MagicBatch(req MagicRequest) (Batch, error) {
	if req.Main.IsZero() {
		return Batch{}, &InputError{Message: "Please upload a main image."}
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return Batch{}, &InputError{Message: "Please describe your edit."}
	}

	withObject := !req.Object.IsZero()
	object := req.Object.Clone()
	lenses := prompt.MagicLenses(withObject)
	adjustments := req.Adjustments.String()

	items := make([]Item, 0, len(lenses))
	for i, lens := range lenses {
		productShot := prompt.IsProductShot(withObject, i, len(lenses))
		item := Item{
			Label: lens.Label,
			Prompt: prompt.Build(prompt.FlowMagic, lens, prompt.Inputs{
				Instruction: instruction,
				Adjustments: adjustments,
				ProductShot: productShot,
			}),
			AspectRatio: req.AspectRatio,
		}
		if withObject {
			item.Secondary = object
			item.SecondaryInstruction = prompt.ObjectInstruction(productShot)
		}
		items = append(items, item)
	}
	return Batch{Flow: prompt.FlowMagic, Model: req.Model, Main: req.Main.Clone(), Items: items}, nil
}

func FoundersBatch(req FoundersRequest) (Batch, error) {
	if req.A.IsZero() || req.B.IsZero() {
		return Batch{}, &InputError{Message: "Please upload photos for both founders."}
	}

	b := req.B.Clone()
	themes := prompt.FounderThemes()
	items := make([]Item, 0, len(themes))
	for _, th := range themes {
		items = append(items, Item{
			Label:                th.Label,
			Prompt:               prompt.Build(prompt.FlowFounders, th, prompt.Inputs{}),
			Secondary:            b,
			SecondaryInstruction: prompt.FounderBInstruction,
			AspectRatio:          prompt.FoundersAspectRatio,
		})
	}
	return Batch{Flow: prompt.FlowFounders, Model: req.Model, Main: req.A.Clone(), Items: items}, nil
}

// Inputs is the flow-agnostic form filled in by session controllers.
type Inputs struct {
	Flow        prompt.Flow
	Style       string
	Model       string
	AspectRatio string
	Adjustments prompt.Adjustments
	Instruction string

	Main     media.Asset
	Object   media.Asset
	FounderA media.Asset
	FounderB media.Asset
}

func (in Inputs) Batch() (Batch, error) {
	switch in.Flow {
	case prompt.FlowMagic:
		return MagicBatch(MagicRequest{
			Main:        in.Main,
			Object:      in.Object,
			Instruction: in.Instruction,
			Adjustments: in.Adjustments,
			AspectRatio: in.AspectRatio,
			Model:       in.Model,
		})
	case prompt.FlowFounders:
		return FoundersBatch(FoundersRequest{A: in.FounderA, B: in.FounderB, Model: in.Model})
	case prompt.FlowPortfolio, "":
		return PortfolioBatch(PortfolioRequest{Main: in.Main, Style: in.Style, Model: in.Model})
	}
	return Batch{}, &InputError{Message: fmt.Sprintf("Unknown flow %q.", in.Flow)}
}
