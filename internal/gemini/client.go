package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/services"
)

const (
	defaultAnalysisModel = "gemini-flash-latest"
	defaultImageModelV1  = "gemini-2.5-flash-image"
	defaultImageModelV2  = "gemini-3-pro-image-preview"
	defaultTimeout       = 120 * time.Second

	outfitAspectRatio = "3:4"
	defaultOutfitTask = "Put the clothing from Image 2 onto the person in Image 1. " +
		"Maintain the pose, lighting, and identity of the person in Image 1 as much as possible."
	analysisPrompt = "Analyze this image in detail. Return a JSON object with a concise but descriptive " +
		"caption (max 2 sentences) as description, five tags, and the three main colors as hex codes."
)

var (
	// ErrMissingAPIKey is returned when no key is configured.
	ErrMissingAPIKey = fmt.Errorf("gemini api key not configured; set gemini.api_key or GEMINI_API_KEY: %w", services.ErrConfiguration)
	// ErrNoImage means the model answered without inline image data.
	ErrNoImage = fmt.Errorf("gemini returned no image: %w", services.ErrExternalService)
	// ErrEmptyResponse means the model answered without text.
	ErrEmptyResponse = fmt.Errorf("gemini returned no text: %w", services.ErrExternalService)
)

// Variant selects the image model tier.
type Variant string

const (
	VariantV1 Variant = "V1"
	VariantV2 Variant = "V2"
)

// ParseVariant accepts V1/V2 case-insensitively; empty means V1.
func ParseVariant(value string) (Variant, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "V1":
		return VariantV1, nil
	case "V2":
		return VariantV2, nil
	default:
		return "", fmt.Errorf("unknown model variant %q: %w", value, services.ErrValidation)
	}
}

// Config holds client settings.
type Config struct {
	APIKey        string
	BaseURL       string
	AnalysisModel string
	ImageModelV1  string
	ImageModelV2  string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// ConfigFrom builds client settings from the [gemini] section.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:        cfg.Gemini.APIKey,
		BaseURL:       cfg.Gemini.BaseURL,
		AnalysisModel: cfg.Gemini.AnalysisModel,
		ImageModelV1:  cfg.Gemini.ImageModelV1,
		ImageModelV2:  cfg.Gemini.ImageModelV2,
		Timeout:       time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	}
}

// Analysis is the structured description of an image.
type Analysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	MainColors  []string `json:"mainColors"`
}

// Client wraps the hosted multimodal model API.
type Client struct {
	models        *genai.Models
	analysisModel string
	imageModelV1  string
	imageModelV2  string
	timeout       time.Duration
	logger        *slog.Logger
}

// NewClient creates a client for the Gemini API.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		models:        client.Models,
		analysisModel: orDefault(cfg.AnalysisModel, defaultAnalysisModel),
		imageModelV1:  orDefault(cfg.ImageModelV1, defaultImageModelV1),
		imageModelV2:  orDefault(cfg.ImageModelV2, defaultImageModelV2),
		timeout:       timeout,
		logger:        logging.NewComponentLogger(logger, "gemini"),
	}, nil
}

// AnalyzeImage asks the analysis model for a caption, tags and main colors.
func (c *Client) AnalyzeImage(ctx context.Context, img Image) (Analysis, error) {
	if len(img.Data) == 0 {
		return Analysis{}, fmt.Errorf("analyze image: empty image: %w", services.ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.mimeType()),
			genai.NewPartFromText(analysisPrompt),
		}, genai.RoleUser),
	}
	resp, err := c.models.GenerateContent(ctx, c.analysisModel, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"description": {Type: genai.TypeString},
				"tags":        {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"mainColors":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
		},
	})
	if err != nil {
		return Analysis{}, services.Wrap(services.ErrExternalService, "gemini", "analyze image", "request failed", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Analysis{}, ErrEmptyResponse
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return Analysis{}, services.Wrap(services.ErrExternalService, "gemini", "analyze image", "decode analysis", err)
	}
	c.logger.Debug("image analyzed", logging.Int("tags", len(analysis.Tags)))
	return analysis, nil
}

// GenerateImage renders prompt with the selected model tier. The aspect
// ratio is mapped onto the supported set with SupportedAspectRatio.
func (c *Client) GenerateImage(ctx context.Context, prompt string, variant Variant, aspectRatio string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, fmt.Errorf("generate image: prompt required: %w", services.ErrValidation)
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return c.generate(ctx, "generate image", variant, contents, SupportedAspectRatio(aspectRatio))
}

// ChangeOutfit dresses the person in the first image with the garment in the
// second. An empty prompt uses the default try-on instruction.
func (c *Client) ChangeOutfit(ctx context.Context, person, garment Image, prompt string, variant Variant) (Image, error) {
	if len(person.Data) == 0 || len(garment.Data) == 0 {
		return Image{}, fmt.Errorf("change outfit: both images are required: %w", services.ErrValidation)
	}
	instruction := strings.TrimSpace(prompt)
	if instruction == "" {
		instruction = defaultOutfitTask
	}
	task := "Task: Virtual Try-On / Outfit Change.\n" +
		"Image 1 is the model/person.\n" +
		"Image 2 is the clothing/garment.\n" +
		"Instruction: " + instruction + "\n" +
		"Generate a high-quality realistic image of the person wearing the new clothes."
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(person.Data, person.mimeType()),
			genai.NewPartFromBytes(garment.Data, garment.mimeType()),
			genai.NewPartFromText(task),
		}, genai.RoleUser),
	}
	return c.generate(ctx, "change outfit", variant, contents, outfitAspectRatio)
}

func (c *Client) generate(ctx context.Context, op string, variant Variant, contents []*genai.Content, aspect string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.modelFor(variant)
	resp, err := c.models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: aspect},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Image{}, err
		}
		return Image{}, services.Wrap(services.ErrExternalService, "gemini", op, "request failed", err)
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				c.logger.Debug("image generated",
					logging.String("model", model),
					logging.String("aspect_ratio", aspect),
					logging.Int("bytes", len(part.InlineData.Data)),
				)
				return Image{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
		}
	}
	return Image{}, ErrNoImage
}

func (c *Client) modelFor(variant Variant) string {
	if variant == VariantV2 {
		return c.imageModelV2
	}
	return c.imageModelV1
}

// SupportedAspectRatio maps a requested ratio onto the model's supported set.
func SupportedAspectRatio(ratio string) string {
	switch strings.TrimSpace(ratio) {
	case "1:1", "4:3", "3:4", "16:9", "9:16":
		return strings.TrimSpace(ratio)
	case "21:9":
		return "16:9"
	case "3:2":
		return "4:3"
	case "2:3":
		return "3:4"
	case "9:21":
		return "9:16"
	default:
		return "1:1"
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
