package worldgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/opengaia-backend/internal/prompts"
)

var (
	ErrEmptyPrompt      = errors.New("tile map prompt is empty")
	ErrTileMapUpstream  = errors.New("tile map generation failed")
	ErrTileMapMalformed = errors.New("tile map reply is malformed")
)

// TileMap asks the collaborator for a Tiled-compatible map for one location's tile map
// prompt. Unlike bible generation there is no fallback; failures are returned.
func (s *Service) TileMap(ctx context.Context, tileMapPrompt string) (map[string]any, error) {
	tileMapPrompt = strings.TrimSpace(tileMapPrompt)
	if tileMapPrompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.llm == nil {
		return nil, ErrTileMapUpstream
	}
	raw, err := s.completeJSON(ctx, prompts.PromptTileMap, prompts.Input{TileMapPrompt: tileMapPrompt})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errNotObject) {
			return nil, fmt.Errorf("%w: %w", ErrTileMapMalformed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTileMapUpstream, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTileMapMalformed, err)
	}
	if layers, ok := out["layers"].([]any); ok {
		s.log.Info("tile map generated", "layers", len(layers))
	}
	return out, nil
}
