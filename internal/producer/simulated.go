package producer

import (
	"context"
	"regexp"
	"strings"

	"github.com/phrazzld/mediaq/internal/domain"
)

var tokenStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Simulated produces deterministic placeholder URLs without calling any
// external service.
type Simulated struct{}

// NewSimulated returns a Simulated producer.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Produce implements Producer.
func (s *Simulated) Produce(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{OutputURL: SimulatedURL(req.AssetType, req.ModuleID, req.LessonID), MIMEType: "image/svg+xml"}, nil
}

// SimulatedURL builds the placeholder URL for an asset. The token query
// parameter joins the non-empty module and lesson ids with "-" and drops any
// character outside [A-Za-z0-9_-].
func SimulatedURL(asset domain.AssetType, moduleID, lessonID string) string {
	var file string
	switch asset {
	case domain.AssetTypeVideo:
		file = "video-placeholder.svg"
	case domain.AssetTypeAnimation:
		file = "animation-placeholder.svg"
	default:
		file = "lesson-robot.svg"
	}

	parts := make([]string, 0, 2)
	for _, p := range []string{moduleID, lessonID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	token := tokenStrip.ReplaceAllString(strings.Join(parts, "-"), "")
	if token == "" {
		return "/placeholders/" + file
	}
	return "/placeholders/" + file + "?token=" + token
}
