package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/platform/logger"
	"github.com/phrazzld/mediaq/internal/platform/storage"
	"github.com/phrazzld/mediaq/internal/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels is a hand-written mediaModels double.
type fakeModels struct {
	mu sync.Mutex

	GenerateImagesFn     func(ctx context.Context, model, prompt string) (*genai.GenerateImagesResponse, error)
	GenerateVideosFn     func(ctx context.Context, model, prompt string) (*genai.GenerateVideosOperation, error)
	GetVideosOperationFn func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)

	prompts []string
	polls   int
}

func (f *fakeModels) GenerateImages(ctx context.Context, model, prompt string, _ *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.GenerateImagesFn(ctx, model, prompt)
}

func (f *fakeModels) GenerateVideos(ctx context.Context, model, prompt string, _ *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.GenerateVideosFn(ctx, model, prompt)
}

func (f *fakeModels) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	return f.GetVideosOperationFn(ctx, op)
}

func testConfig() Config {
	return Config{
		ImageModel:   "imagen-test",
		VideoModel:   "veo-test",
		PollInterval: time.Millisecond,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	}
}

func newTestProducer(t *testing.T, models mediaModels, writer AssetWriter) *Producer {
	t.Helper()
	p, err := newProducer(models, testConfig(), writer, logger.Discard())
	require.NoError(t, err)
	return p
}

func TestProduceImageUsesHostedURI(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		GenerateImagesFn: func(ctx context.Context, model, prompt string) (*genai.GenerateImagesResponse, error) {
			assert.Equal(t, "imagen-test", model)
			return &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{GCSURI: "gs://bucket/img.png", MIMEType: "image/png"}},
			}}, nil
		},
	}
	p := newTestProducer(t, models, nil)

	res, err := p.Produce(context.Background(), producer.Request{
		JobID:     uuid.New(),
		AssetType: domain.AssetTypeImage,
		ModuleID:  "algebra",
		LessonID:  "fractions",
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/img.png", res.OutputURL)
	require.Len(t, models.prompts, 1)
	assert.Contains(t, models.prompts[0], "Module: algebra.")
	assert.Contains(t, models.prompts[0], "Lesson: fractions.")
}

func TestProduceImageStoresInlineBytes(t *testing.T) {
	t.Parallel()

	fs, err := storage.NewFileStore(t.TempDir(), "/media")
	require.NoError(t, err)
	models := &fakeModels{
		GenerateImagesFn: func(ctx context.Context, model, prompt string) (*genai.GenerateImagesResponse, error) {
			return &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{ImageBytes: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
			}}, nil
		},
	}
	p := newTestProducer(t, models, fs)

	id := uuid.New()
	res, err := p.Produce(context.Background(), producer.Request{JobID: id, AssetType: domain.AssetTypeImage})
	require.NoError(t, err)
	assert.Equal(t, "/media/image/"+id.String()+".png", res.OutputURL)

	// Without a writer inline bytes cannot be served
	_, err = newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{JobID: id, AssetType: domain.AssetTypeImage})
	assert.ErrorIs(t, err, ErrNoAsset)
}

func TestProduceImageFiltered(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		GenerateImagesFn: func(ctx context.Context, model, prompt string) (*genai.GenerateImagesResponse, error) {
			return &genai.GenerateImagesResponse{}, nil
		},
	}
	_, err := newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{AssetType: domain.AssetTypeImage})
	assert.ErrorIs(t, err, ErrContentBlocked)
}

func TestProduceRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	models := &fakeModels{
		GenerateImagesFn: func(ctx context.Context, model, prompt string) (*genai.GenerateImagesResponse, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("503 unavailable")
			}
			return &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{GCSURI: "gs://ok"}},
			}}, nil
		},
	}
	res, err := newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{AssetType: domain.AssetTypeImage})
	require.NoError(t, err)
	assert.Equal(t, "gs://ok", res.OutputURL)
	assert.Equal(t, 3, calls)

	calls = -10
	_, err = newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{AssetType: domain.AssetTypeImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestProduceVideoPollsOperation(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		GenerateVideosFn: func(ctx context.Context, model, prompt string) (*genai.GenerateVideosOperation, error) {
			assert.Equal(t, "veo-test", model)
			assert.Contains(t, prompt, "animation")
			return &genai.GenerateVideosOperation{Name: "operations/1"}, nil
		},
	}
	models.GetVideosOperationFn = func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		if models.polls < 3 {
			return &genai.GenerateVideosOperation{Name: op.Name}, nil
		}
		return &genai.GenerateVideosOperation{
			Name: op.Name,
			Done: true,
			Response: &genai.GenerateVideosResponse{GeneratedVideos: []*genai.GeneratedVideo{
				{Video: &genai.Video{URI: "https://video.example/1.mp4", MIMEType: "video/mp4"}},
			}},
		}, nil
	}

	res, err := newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{
		JobID:     uuid.New(),
		AssetType: domain.AssetTypeAnimation,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://video.example/1.mp4", res.OutputURL)
	assert.Equal(t, 3, models.polls)
}

func TestProduceVideoOperationError(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		GenerateVideosFn: func(ctx context.Context, model, prompt string) (*genai.GenerateVideosOperation, error) {
			return &genai.GenerateVideosOperation{Done: true, Error: map[string]any{"message": "quota exceeded"}}, nil
		},
	}
	_, err := newTestProducer(t, models, nil).Produce(context.Background(), producer.Request{AssetType: domain.AssetTypeVideo})
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestProduceVideoHonoursContext(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		GenerateVideosFn: func(ctx context.Context, model, prompt string) (*genai.GenerateVideosOperation, error) {
			return &genai.GenerateVideosOperation{Name: "operations/slow"}, nil
		},
		GetVideosOperationFn: func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
			return op, nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestProducer(t, models, nil).Produce(ctx, producer.Request{AssetType: domain.AssetTypeVideo})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewProducerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewProducer(context.Background(), Config{}, nil, logger.Discard())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newProducer(&fakeModels{}, Config{ImageModel: "i"}, nil, logger.Discard())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newProducer(&fakeModels{}, testConfig(), nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Prompt = "{{.Broken"
	_, err = newProducer(&fakeModels{}, cfg, nil, logger.Discard())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
