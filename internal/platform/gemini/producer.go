package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/producer"
	"google.golang.org/genai"
)

const defaultPrompt = `Create a {{.Kind}} for an educational lesson.
{{- if .ModuleID}} Module: {{.ModuleID}}.{{end}}
{{- if .LessonID}} Lesson: {{.LessonID}}.{{end}}
Use a friendly, clear visual style suitable for students, with no on-screen text.`

// Config holds the settings for Producer.
type Config struct {
	APIKey       string
	ImageModel   string
	VideoModel   string
	AspectRatio  string
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	// Prompt overrides the default prompt template. It is executed with
	// .Kind, .ModuleID and .LessonID.
	Prompt string
}

// AssetWriter stores inline asset bytes and exposes them by URL.
type AssetWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// Producer generates assets with Imagen and Veo.
type Producer struct {
	models mediaModels
	writer AssetWriter
	cfg    Config
	prompt *template.Template
	logger *slog.Logger
}

var _ producer.Producer = (*Producer)(nil)

// NewProducer creates a Producer backed by the Gemini API. writer may be nil,
// in which case generations that return only inline bytes fail with
// ErrNoAsset.
func NewProducer(ctx context.Context, cfg Config, writer AssetWriter, logger *slog.Logger) (*Producer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}
	models, err := newClientModels(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return newProducer(models, cfg, writer, logger)
}

func newProducer(models mediaModels, cfg Config, writer AssetWriter, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ImageModel == "" || cfg.VideoModel == "" {
		return nil, fmt.Errorf("%w: image and video model names are required", ErrInvalidConfig)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	text := cfg.Prompt
	if text == "" {
		text = defaultPrompt
	}
	tmpl, err := template.New("media").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}

	return &Producer{
		models: models,
		writer: writer,
		cfg:    cfg,
		prompt: tmpl,
		logger: logger.With("component", "gemini_producer"),
	}, nil
}

// Produce implements producer.Producer.
func (p *Producer) Produce(ctx context.Context, req producer.Request) (producer.Result, error) {
	prompt, err := p.createPrompt(req)
	if err != nil {
		return producer.Result{}, err
	}

	switch req.AssetType {
	case domain.AssetTypeImage:
		return p.produceImage(ctx, req, prompt)
	case domain.AssetTypeVideo, domain.AssetTypeAnimation:
		return p.produceVideo(ctx, req, prompt)
	default:
		return producer.Result{}, fmt.Errorf("%w: %q", producer.ErrUnsupportedAsset, req.AssetType)
	}
}

func (p *Producer) createPrompt(req producer.Request) (string, error) {
	kind := "short illustrative image"
	switch req.AssetType {
	case domain.AssetTypeVideo:
		kind = "short explainer video"
	case domain.AssetTypeAnimation:
		kind = "short looping animation"
	}
	var buf bytes.Buffer
	err := p.prompt.Execute(&buf, struct {
		Kind     string
		ModuleID string
		LessonID string
	}{kind, req.ModuleID, req.LessonID})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (p *Producer) produceImage(ctx context.Context, req producer.Request, prompt string) (producer.Result, error) {
	var resp *genai.GenerateImagesResponse
	err := p.withRetry(ctx, "generate_images", func() error {
		var err error
		resp, err = p.models.GenerateImages(ctx, p.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
			AspectRatio: p.cfg.AspectRatio,
		})
		return err
	})
	if err != nil {
		return producer.Result{}, err
	}

	if resp == nil || len(resp.GeneratedImages) == 0 {
		return producer.Result{}, fmt.Errorf("%w: no images in response", ErrContentBlocked)
	}
	img := resp.GeneratedImages[0]
	if img == nil || img.Image == nil {
		if img != nil && img.RAIFilteredReason != "" {
			return producer.Result{}, fmt.Errorf("%w: %s", ErrContentBlocked, img.RAIFilteredReason)
		}
		return producer.Result{}, ErrNoAsset
	}
	return p.resolve(ctx, req, img.Image.GCSURI, img.Image.ImageBytes, img.Image.MIMEType, "png")
}

func (p *Producer) produceVideo(ctx context.Context, req producer.Request, prompt string) (producer.Result, error) {
	var op *genai.GenerateVideosOperation
	err := p.withRetry(ctx, "generate_videos", func() error {
		var err error
		op, err = p.models.GenerateVideos(ctx, p.cfg.VideoModel, prompt, &genai.GenerateVideosConfig{
			AspectRatio: p.cfg.AspectRatio,
		})
		return err
	})
	if err != nil {
		return producer.Result{}, err
	}
	if op == nil {
		return producer.Result{}, ErrNoAsset
	}

	log := p.logger.With("job_id", req.JobID, "operation", op.Name)
	log.DebugContext(ctx, "video generation started")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return producer.Result{}, ctx.Err()
		case <-ticker.C:
		}
		next, err := p.models.GetVideosOperation(ctx, op)
		if err != nil {
			return producer.Result{}, fmt.Errorf("failed to poll video operation: %w", err)
		}
		if next != nil {
			op = next
		}
	}

	if len(op.Error) > 0 {
		return producer.Result{}, fmt.Errorf("%w: %v", ErrOperationFailed, op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
			return producer.Result{}, fmt.Errorf("%w: %s", ErrContentBlocked,
				strings.Join(op.Response.RAIMediaFilteredReasons, "; "))
		}
		return producer.Result{}, ErrNoAsset
	}
	video := op.Response.GeneratedVideos[0]
	if video == nil || video.Video == nil {
		return producer.Result{}, ErrNoAsset
	}

	log.InfoContext(ctx, "video generation finished")
	return p.resolve(ctx, req, video.Video.URI, video.Video.VideoBytes, video.Video.MIMEType, "mp4")
}

// resolve turns a generated asset into an output URL, persisting inline
// bytes when no hosted URI was returned.
func (p *Producer) resolve(
	ctx context.Context,
	req producer.Request,
	uri string,
	data []byte,
	mimeType string,
	ext string,
) (producer.Result, error) {
	if uri != "" {
		return producer.Result{OutputURL: uri, MIMEType: mimeType}, nil
	}
	if len(data) == 0 || p.writer == nil {
		return producer.Result{}, ErrNoAsset
	}
	key, err := p.writer.Write(ctx, fmt.Sprintf("%s/%s.%s", req.AssetType, req.JobID, ext), data)
	if err != nil {
		return producer.Result{}, fmt.Errorf("failed to store generated asset: %w", err)
	}
	return producer.Result{OutputURL: p.writer.URL(key), MIMEType: mimeType}, nil
}

// withRetry calls fn up to MaxRetries+1 times with exponential backoff and
// jitter. Context errors end the loop immediately.
func (p *Producer) withRetry(ctx context.Context, op string, fn func() error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= p.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt+1, err)
		}

		// delay = base * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := float64(p.cfg.RetryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		p.logger.WarnContext(ctx, "gemini call failed, retrying",
			"operation", op,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
