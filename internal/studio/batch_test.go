package studio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
)

func TestPortfolioBatch(t *testing.T) {
	b, err := PortfolioBatch(PortfolioRequest{Main: testMain, Style: "Tropical", Model: prompt.ModelFluxStyle})
	require.NoError(t, err)

	assert.Equal(t, prompt.FlowPortfolio, b.Flow)
	assert.Equal(t, prompt.ModelFluxStyle, b.Model)
	require.Len(t, b.Items, 6)
	assert.Equal(t, "White Sand Beach", b.Items[0].Label)
	for _, it := range b.Items {
		assert.True(t, it.Secondary.IsZero())
		assert.Empty(t, it.AspectRatio)
		assert.Contains(t, it.Prompt, "Target Style: "+it.Label)
	}

	def, err := PortfolioBatch(PortfolioRequest{Main: testMain})
	require.NoError(t, err)
	assert.Equal(t, "Professional Headshot", def.Items[0].Label)

	_, err = PortfolioBatch(PortfolioRequest{Main: testMain, Style: "baroque"})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestMagicBatchWithObject(t *testing.T) {
	object := media.Asset{MIMEType: "image/png", Data: []byte("bottle")}
	adj := prompt.Adjustments{Brightness: 70, Contrast: 50, Warmth: 30}

	b, err := MagicBatch(MagicRequest{
		Main:        testMain,
		Object:      object,
		Instruction: "  put me on a yacht ",
		Adjustments: adj,
		AspectRatio: "4:3",
	})
	require.NoError(t, err)
	require.Len(t, b.Items, 6)

	for i, it := range b.Items {
		assert.Equal(t, "4:3", it.AspectRatio)
		assert.Equal(t, object, it.Secondary)
		assert.True(t, containsAll(it.Prompt, `"put me on a yacht"`, adj.String()), "item %d", i)

		if i == prompt.HeroLensIndex {
			assert.Equal(t, "Product Feature Macro", it.Label)
			assert.Contains(t, it.Prompt, "Focus primarily on the inserted object.")
			assert.Contains(t, it.SecondaryInstruction, "HERO PRODUCT")
			continue
		}
		assert.Contains(t, it.Prompt, "Keep the subject consistent.")
		assert.Equal(t, "Use the second image as a reference object integrated naturally into the scene.", it.SecondaryInstruction)
	}
}

func TestMagicBatchWithoutObject(t *testing.T) {
	b, err := MagicBatch(MagicRequest{Main: testMain, Instruction: "golden hour"})
	require.NoError(t, err)

	lenses := prompt.EditorLenses()
	require.Len(t, b.Items, len(lenses))
	for i, it := range b.Items {
		assert.Equal(t, lenses[i].Label, it.Label)
		assert.True(t, it.Secondary.IsZero())
		assert.Empty(t, it.SecondaryInstruction)
		assert.NotContains(t, it.Prompt, "inserted object")
	}
}

func TestFoundersBatch(t *testing.T) {
	a := media.Asset{MIMEType: "image/jpeg", Data: []byte("founder-a")}
	bImg := media.Asset{MIMEType: "image/jpeg", Data: []byte("founder-b")}

	b, err := FoundersBatch(FoundersRequest{A: a, B: bImg})
	require.NoError(t, err)

	assert.Equal(t, a, b.Main)
	require.Len(t, b.Items, 3)
	assert.Equal(t, "Executive Studio Power Duo", b.Items[0].Label)
	for _, it := range b.Items {
		assert.Equal(t, "16:9", it.AspectRatio)
		assert.Equal(t, bImg, it.Secondary)
		assert.Equal(t, prompt.FounderBInstruction, it.SecondaryInstruction)
		assert.Contains(t, it.Prompt, "Subject A: From Image 1.")
	}
}

func TestBatchInputErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		msg  string
	}{
		{"portfolio without photo", Inputs{Flow: prompt.FlowPortfolio}, "Please upload a main image."},
		{"magic without photo", Inputs{Flow: prompt.FlowMagic, Instruction: "x"}, "Please upload a main image."},
		{"magic without instruction", Inputs{Flow: prompt.FlowMagic, Main: testMain, Instruction: "   "}, "Please describe your edit."},
		{"founders missing B", Inputs{Flow: prompt.FlowFounders, FounderA: testMain}, "Please upload photos for both founders."},
		{"founders missing A", Inputs{Flow: prompt.FlowFounders, FounderB: testMain}, "Please upload photos for both founders."},
		{"unknown flow", Inputs{Flow: "collage", Main: testMain}, `Unknown flow "collage".`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Batch()
			require.ErrorIs(t, err, ErrMissingInput)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestInputErrorsNeverReachTheGenerator(t *testing.T) {
	h := newHarness(Batch{}, nil)

	_, err := h.runner.Start(context.Background(), Inputs{Flow: prompt.FlowMagic, Main: testMain}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
	_, err = h.runner.Founders(context.Background(), FoundersRequest{A: testMain}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
	_, err = h.runner.Portfolio(context.Background(), PortfolioRequest{}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)

	assert.Zero(t, h.keys.calls)
	assert.Empty(t, h.gen.calls)
}

func TestBatchClonesInputs(t *testing.T) {
	data := []byte("original")
	main := media.Asset{MIMEType: "image/jpeg", Data: data}

	b, err := MagicBatch(MagicRequest{Main: main, Object: main, Instruction: "x"})
	require.NoError(t, err)
	data[0] = 'X'

	assert.Equal(t, "original", string(b.Main.Data))
	assert.Equal(t, "original", string(b.Items[0].Secondary.Data))
}

func TestRunPassesItemFieldsToGenerator(t *testing.T) {
	b, err := FoundersBatch(FoundersRequest{A: testMain, B: media.Asset{MIMEType: "image/png", Data: []byte("b")}, Model: "m"})
	require.NoError(t, err)
	h := newHarness(b, nil)

	results, err := h.runner.Run(context.Background(), b, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, req := range h.gen.reqs {
		assert.Equal(t, testMain, req.Main)
		assert.Equal(t, "m", req.Model)
		assert.Equal(t, "16:9", req.AspectRatio)
		assert.Equal(t, b.Items[i].Prompt, req.Prompt)
		assert.Equal(t, []byte("b"), req.Secondary.Data)
	}
	assert.Equal(t, b.Items[0].Prompt, string(results[0].Image.Data))
}
