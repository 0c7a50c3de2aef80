package biz

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Settings keys accepted by a partial update.
const (
	SettingTheme             = "theme"
	SettingAutoDownload      = "auto_download"
	SettingKeepOriginals     = "keep_originals"
	SettingCleanupTTLMinutes = "cleanup_ttl_minutes"
)

// Themes lists the accepted theme names; the first is the default.
var Themes = []string{"rubedo", "citrinitas", "viriditas", "nigredo", "albedo"}

type Settings struct {
	Theme             string `json:"theme"`
	AutoDownload      bool   `json:"auto_download"`
	KeepOriginals     bool   `json:"keep_originals"`
	CleanupTTLMinutes int64  `json:"cleanup_ttl_minutes"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Theme:             Themes[0],
		AutoDownload:      false,
		KeepOriginals:     true,
		CleanupTTLMinutes: 60,
	}
}

// Apply returns a copy of s with patch applied. Unknown keys are ignored.
// Any invalid value rejects the whole patch.
func (s Settings) Apply(patch map[string]any) (*Settings, error) {
	next := s
	for key, raw := range patch {
		switch key {
		case SettingTheme:
			theme, ok := raw.(string)
			if !ok || !slices.Contains(Themes, theme) {
				return nil, fmt.Errorf("%w: theme must be one of %v", ErrInvalidSettingsValue, Themes)
			}
			next.Theme = theme
		case SettingAutoDownload:
			v, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: auto_download must be a boolean", ErrInvalidSettingsValue)
			}
			next.AutoDownload = v
		case SettingKeepOriginals:
			v, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: keep_originals must be a boolean", ErrInvalidSettingsValue)
			}
			next.KeepOriginals = v
		case SettingCleanupTTLMinutes:
			v, ok := wholeNumber(raw)
			if !ok || v < 0 {
				return nil, fmt.Errorf("%w: cleanup_ttl_minutes must be a non-negative integer", ErrInvalidSettingsValue)
			}
			next.CleanupTTLMinutes = v
		}
	}
	return &next, nil
}

// wholeNumber accepts integer kinds and integral floats, which is what
// encoding/json produces for numbers.
func wholeNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// SettingsUseCase reads and patches the application settings.
type SettingsUseCase struct {
	repo SettingsRepo
	log  *logger.Logger
}

func NewSettingsUseCase(repo SettingsRepo, log *logger.Logger) *SettingsUseCase {
	if log == nil {
		log = logger.NewNop()
	}
	return &SettingsUseCase{repo: repo, log: log.Named("settings")}
}

func (uc *SettingsUseCase) Get(ctx context.Context) (*Settings, error) {
	return uc.repo.Get(ctx)
}

func (uc *SettingsUseCase) Update(ctx context.Context, patch map[string]any) (*Settings, error) {
	s, err := uc.repo.Update(ctx, patch)
	if err != nil {
		return nil, err
	}
	uc.log.WithContext(ctx).Info("settings updated", zap.Any("settings", s))
	return s, nil
}
