package synth

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/rimage"
	"github.com/suas-odlc/odlc/target"
)

// Config controls how synthetic images are composed.
type Config struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// OutputWidth and OutputHeight resize the composed image when set.
	OutputWidth  int `json:"output_width,omitempty"`
	OutputHeight int `json:"output_height,omitempty"`

	MinTargets           int     `json:"min_targets"`
	MaxTargets           int     `json:"max_targets"`
	MinTargetSize        float64 `json:"min_target_size"`
	MaxTargetSize        float64 `json:"max_target_size"`
	MaxPlacementAttempts int     `json:"max_placement_attempts"`

	// Backgrounds is a directory of background images. A procedural ground texture is used when
	// empty.
	Backgrounds string `json:"backgrounds,omitempty"`
	// MaxBlur is the upper bound of the gaussian blur sigma applied to each image.
	MaxBlur     float64        `json:"max_blur,omitempty"`
	Format      string         `json:"format"`
	JPEGQuality int            `json:"jpeg_quality,omitempty"`
	MinContrast float64        `json:"min_contrast"`
	Shapes      []target.Shape `json:"shapes,omitempty"`
	Seed        int64          `json:"seed"`
}

// DefaultConfig returns a 640x480 jpeg configuration with up to three targets per image.
func DefaultConfig() Config {
	return Config{
		Width:                640,
		Height:               480,
		MinTargets:           1,
		MaxTargets:           3,
		MinTargetSize:        24,
		MaxTargetSize:        96,
		MaxPlacementAttempts: 50,
		MaxBlur:              0.8,
		Format:               string(rimage.FormatJPEG),
		JPEGQuality:          90,
		MinContrast:          0.3,
		Seed:                 1,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if cfg.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if (cfg.OutputWidth == 0) != (cfg.OutputHeight == 0) || cfg.OutputWidth < 0 || cfg.OutputHeight < 0 {
		return utils.NewConfigValidationError(path,
			errors.New("output_width and output_height must both be set or both be omitted"))
	}
	if cfg.MinTargets < 1 || cfg.MaxTargets < cfg.MinTargets {
		return utils.NewConfigValidationError(path,
			errors.Errorf("need 1 <= min_targets <= max_targets, got %d and %d", cfg.MinTargets, cfg.MaxTargets))
	}
	if cfg.MinTargetSize < 8 || cfg.MaxTargetSize < cfg.MinTargetSize {
		return utils.NewConfigValidationError(path,
			errors.Errorf("need 8 <= min_target_size <= max_target_size, got %v and %v", cfg.MinTargetSize, cfg.MaxTargetSize))
	}
	if span := cfg.MaxTargetSize*math.Sqrt2 + 4; span >= float64(cfg.Width) || span >= float64(cfg.Height) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_target_size %v does not fit a %dx%d image", cfg.MaxTargetSize, cfg.Width, cfg.Height))
	}
	if cfg.MaxPlacementAttempts <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_placement_attempts")
	}
	if cfg.MaxBlur < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_blur cannot be negative"))
	}
	if _, err := rimage.ParseFormat(cfg.Format); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if cfg.JPEGQuality < 0 || cfg.JPEGQuality > 100 {
		return utils.NewConfigValidationError(path, errors.Errorf("jpeg_quality %d out of range [0, 100]", cfg.JPEGQuality))
	}
	if cfg.MinContrast < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_contrast cannot be negative"))
	}
	for _, s := range cfg.Shapes {
		if !s.Valid() {
			return utils.NewConfigValidationError(path, errors.Errorf("unknown shape %q", s))
		}
	}
	return nil
}
