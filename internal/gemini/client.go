package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
)

const (
	defaultSecondaryInstruction = "Use the second image as a reference object/style."

	fluxStyleSuffix = ". Style: Hyper-realistic, 8k resolution, sharp focus, highly detailed skin texture, natural lighting, depth of field, film grain, cinematic composition, masterpiece, trending on ArtStation."
	qualitySuffix   = ". High quality, professional photography, 8k resolution."
	retryPrefix     = "Edit this image. "

	maxAttempts    = 2
	excerptLength  = 200
	fallbackOutput = "image/png"
)

// modelsAPI is the slice of genai.Models the generator needs.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Limiter, when set, is waited on before every outbound call.
	Limiter *rate.Limiter
}

type Client struct {
	models  modelsAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(opts.BaseURL),
			APIVersion: strings.TrimSpace(opts.APIVersion),
		},
	}

	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newWithModels(gc.Models, opts.Limiter, opts.Logger), nil
}

func newWithModels(models modelsAPI, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		models:  models,
		limiter: limiter,
		logger:  logger,
	}
}

// Request describes one image-generation call.
type Request struct {
	Main                 media.Asset
	Prompt               string
	Secondary            media.Asset
	SecondaryInstruction string
	AspectRatio          string
	Model                string
}

// GenerateImage performs one generation with at most one simplified-prompt
// retry after a safety stop. Rate-limit errors are returned untouched.
func (c *Client) GenerateImage(ctx context.Context, req Request) (media.Asset, error) {
	if c.models == nil {
		return media.Asset{}, errMissingModelClient
	}
	if req.Main.IsZero() {
		return media.Asset{}, errMissingMainImage
	}

	text := req.Prompt
	model := req.Model
	if model == "" {
		model = prompt.ModelDefault
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry := attempt > 1

		resp, err := c.call(ctx, req, model, text, retry)
		if err != nil {
			return media.Asset{}, err
		}

		img, err := classify(resp)
		if err == nil {
			return img, nil
		}
		if retry || !errors.Is(err, ErrSafetyBlocked) {
			return media.Asset{}, err
		}

		c.logger.Warn("safety stop, retrying with simplified prompt", "model", model, "err", err)
		text = prompt.Simplify(req.Prompt)
		model = resolveModel(model)
	}

	// unreachable: the last attempt always returns
	return media.Asset{}, ErrNoImageProduced
}

func (c *Client) call(ctx context.Context, req Request, model, text string, retry bool) (*genai.GenerateContentResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := resolveModel(model)
	contents := buildContents(req, styledPrompt(model, text, retry))

	c.logger.Debug("gemini generate", "model", target, "retry", retry, "aspect_ratio", req.AspectRatio)
	return c.models.GenerateContent(ctx, target, contents, buildConfig(req.AspectRatio))
}

func resolveModel(model string) string {
	if model == prompt.ModelFluxStyle {
		return prompt.ModelDefault
	}
	return model
}

func styledPrompt(model, text string, retry bool) string {
	switch {
	case model == prompt.ModelFluxStyle:
		return text + fluxStyleSuffix
	case retry:
		return retryPrefix + text
	default:
		return text + qualitySuffix
	}
}

func buildContents(req Request, text string) []*genai.Content {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Main.Data, req.Main.MIMEType),
	}
	if !req.Secondary.IsZero() {
		instruction := req.SecondaryInstruction
		if strings.TrimSpace(instruction) == "" {
			instruction = defaultSecondaryInstruction
		}
		parts = append(parts,
			genai.NewPartFromBytes(req.Secondary.Data, req.Secondary.MIMEType),
			genai.NewPartFromText(instruction),
		)
	}
	parts = append(parts, genai.NewPartFromText(text))

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func buildConfig(aspectRatio string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
	if aspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: aspectRatio}
	}
	return cfg
}

// classify maps a response to an image or one of the outcome errors, in the
// order stop reason, image data, text, nothing.
func classify(resp *genai.GenerateContentResponse) (media.Asset, error) {
	if resp == nil {
		return media.Asset{}, ErrNoImageProduced
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return media.Asset{}, &StoppedError{Reason: string(fb.BlockReason)}
		}
		return media.Asset{}, ErrNoImageProduced
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case "", genai.FinishReasonStop:
	default:
		return media.Asset{}, &StoppedError{Reason: string(cand.FinishReason)}
	}

	var text strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				mimeType := p.InlineData.MIMEType
				if mimeType == "" {
					mimeType = fallbackOutput
				}
				return media.Asset{MIMEType: mimeType, Data: p.InlineData.Data}, nil
			}
			text.WriteString(p.Text)
		}
	}

	if t := strings.TrimSpace(text.String()); t != "" {
		return media.Asset{}, &NoImageError{Excerpt: excerpt(t, excerptLength)}
	}
	return media.Asset{}, ErrNoImageProduced
}

func excerpt(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
