// Package config defines the project file that configures dataset generation, import, training
// and path planning.
package config

import (
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/generator"
	"github.com/suas-odlc/odlc/pathplan"
	"github.com/suas-odlc/odlc/synth"
	"github.com/suas-odlc/odlc/train"
)

// DefaultFile is the project file looked up when none is given.
const DefaultFile = "odlc.json"

// Config is the project file. Every section starts from its defaults; the file only needs the
// fields it changes.
type Config struct {
	ConfigFilePath string `json:"-"`

	Debug    bool             `json:"debug,omitempty"`
	Generate generator.Config `json:"generate"`
	Synth    synth.Config     `json:"synth"`
	Import   ImportConfig     `json:"import"`
	Train    train.Config     `json:"train"`
	Plan     pathplan.Config  `json:"plan"`
}

// ImportConfig points at annotated imagery. At most one of VOC and JSONL is set.
type ImportConfig struct {
	VOC    string `json:"voc,omitempty"`
	JSONL  string `json:"jsonl,omitempty"`
	Images string `json:"images,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *ImportConfig) Validate(path string) error {
	if cfg.VOC != "" && cfg.JSONL != "" {
		return utils.NewConfigValidationError(path, errors.New("only one of voc and jsonl may be set"))
	}
	return nil
}

// Default returns the configuration used when no project file exists.
func Default() *Config {
	return &Config{
		Generate: generator.Config{
			Count:     100,
			Splits:    dataset.DefaultRatios,
			Seed:      1,
			OutputDir: "dataset",
		},
		Synth: synth.DefaultConfig(),
		Train: withDirs(train.DefaultConfig()),
		Plan:  pathplan.DefaultConfig(),
	}
}

func withDirs(cfg train.Config) train.Config {
	cfg.DatasetDir = "dataset"
	cfg.ExportDir = "export"
	return cfg
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Generate.Validate("generate"); err != nil {
		return err
	}
	if err := cfg.Synth.Validate("synth"); err != nil {
		return err
	}
	if err := cfg.Import.Validate("import"); err != nil {
		return err
	}
	if err := cfg.Train.Validate("train"); err != nil {
		return err
	}
	return cfg.Plan.Validate("plan")
}

// Schema returns the JSON schema of the project file.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
