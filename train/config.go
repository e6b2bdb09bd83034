// Package train drives the external model-maker object detector API: it checks a generated
// dataset, renders the training program and runs it locally or in a container.
package train

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"
)

// Runners.
const (
	RunnerLocal  = "local"
	RunnerDocker = "docker"
)

// Export formats understood by the external API.
const (
	ExportTFLite     = "tflite"
	ExportSavedModel = "saved_model"
	ExportLabel      = "label"
)

// Quantization choices passed through to the export call.
const (
	QuantizationNone    = "none"
	QuantizationDynamic = "dynamic"
	QuantizationInt8    = "int8"
	QuantizationFloat16 = "float16"
)

// DefaultImage is the container image used by the docker runner.
const DefaultImage = "tensorflow/tensorflow:2.8.4"

// ModelSpecs lists the model families the object detector API offers.
var ModelSpecs = []string{
	"efficientdet_lite0", "efficientdet_lite1", "efficientdet_lite2", "efficientdet_lite3", "efficientdet_lite4",
}

var (
	exportFormats = []string{ExportTFLite, ExportSavedModel, ExportLabel}
	quantizations = []string{QuantizationNone, QuantizationDynamic, QuantizationInt8, QuantizationFloat16}
	runners       = []string{RunnerLocal, RunnerDocker}
)

// Config describes a training run.
type Config struct {
	ModelSpec       string   `json:"model_spec"`
	Epochs          int      `json:"epochs"`
	BatchSize       int      `json:"batch_size"`
	TrainWholeModel bool     `json:"train_whole_model,omitempty"`
	Export          []string `json:"export,omitempty"`
	Quantization    string   `json:"quantization,omitempty"`
	DatasetDir      string   `json:"dataset_dir"`
	ExportDir       string   `json:"export_dir"`
	Runner          string   `json:"runner,omitempty"`
	Python          string   `json:"python,omitempty"`
	Image           string   `json:"image,omitempty"`
}

// DefaultConfig returns the smallest model family with a tflite export run locally.
func DefaultConfig() Config {
	return Config{
		ModelSpec:    "efficientdet_lite0",
		Epochs:       50,
		BatchSize:    8,
		Export:       []string{ExportTFLite},
		Quantization: QuantizationNone,
		Runner:       RunnerLocal,
		Python:       "python3",
		Image:        DefaultImage,
	}
}

// withDefaults fills the optional fields left empty.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if len(cfg.Export) == 0 {
		cfg.Export = def.Export
	}
	if cfg.Quantization == "" {
		cfg.Quantization = def.Quantization
	}
	if cfg.Runner == "" {
		cfg.Runner = def.Runner
	}
	if cfg.Python == "" {
		cfg.Python = def.Python
	}
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	return cfg
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.ModelSpec == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model_spec")
	}
	if !lo.Contains(ModelSpecs, cfg.ModelSpec) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown model_spec %q, expected one of %v", cfg.ModelSpec, ModelSpecs))
	}
	if cfg.Epochs <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "epochs")
	}
	if cfg.BatchSize <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "batch_size")
	}
	if cfg.DatasetDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dataset_dir")
	}
	if cfg.ExportDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "export_dir")
	}
	if unknown, _ := lo.Difference(cfg.Export, exportFormats); len(unknown) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown export formats %v", unknown))
	}
	if cfg.Quantization != "" && !lo.Contains(quantizations, cfg.Quantization) {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown quantization %q", cfg.Quantization))
	}
	if cfg.Runner != "" && !lo.Contains(runners, cfg.Runner) {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown runner %q", cfg.Runner))
	}
	return nil
}
