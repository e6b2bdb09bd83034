package train

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suas-odlc/odlc/dataset"
)

// MetricsFile is written by the training program into the export directory.
const MetricsFile = "metrics.json"

// container mount points of the docker runner.
const (
	containerDataset = "/dataset"
	containerExport  = "/export"
	containerScript  = "/odlc_train.py"
)

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

var exportEnums = map[string]string{
	ExportTFLite:     "ExportFormat.TFLITE",
	ExportSavedModel: "ExportFormat.SAVED_MODEL",
	ExportLabel:      "ExportFormat.LABEL",
}

// BuildScript renders the python program that loads the dataset splits from their cache files,
// trains, evaluates and exports the model, then writes the evaluation metrics as json. Paths are
// the ones seen by the configured runner.
func BuildScript(cfg Config) (string, error) {
	if err := cfg.Validate("train"); err != nil {
		return "", err
	}
	cfg = cfg.withDefaults()
	datasetDir, exportDir := cfg.DatasetDir, cfg.ExportDir
	if cfg.Runner == RunnerDocker {
		datasetDir, exportDir = containerDataset, containerExport
	}

	var script strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&script, format+"\n", args...)
	}
	line("import json")
	line("import os")
	line("")
	line("from tflite_model_maker import model_spec, object_detector")
	line("from tflite_model_maker.config import ExportFormat, QuantizationConfig")
	line("")
	line("DATASET_DIR = %s", strconv.Quote(filepath.ToSlash(datasetDir)))
	line("EXPORT_DIR = %s", strconv.Quote(filepath.ToSlash(exportDir)))
	line("")
	line("")
	line("def load(split):")
	line("    prefix = os.path.join(DATASET_DIR, split)")
	line("    if not os.path.exists(prefix + %s):", strconv.Quote("_meta_data.yaml"))
	line("        return None")
	line("    return object_detector.DataLoader.from_cache(prefix)")
	line("")
	line("")
	line("train_data = load(%s)", strconv.Quote(string(dataset.SplitTrain)))
	line("validation_data = load(%s)", strconv.Quote(string(dataset.SplitValidation)))
	line("test_data = load(%s)", strconv.Quote(string(dataset.SplitTest)))
	line("if train_data is None:")
	line("    raise SystemExit(%s)", strconv.Quote("no train split in "+filepath.ToSlash(datasetDir)))
	line("")
	line("spec = model_spec.get(%s)", strconv.Quote(cfg.ModelSpec))
	line("model = object_detector.create(")
	line("    train_data,")
	line("    model_spec=spec,")
	line("    epochs=%d,", cfg.Epochs)
	line("    batch_size=%d,", cfg.BatchSize)
	line("    train_whole_model=%s,", pyBool(cfg.TrainWholeModel))
	line("    validation_data=validation_data,")
	line(")")
	line("")
	line("eval_data = test_data if test_data is not None else validation_data")
	line("metrics = model.evaluate(eval_data) if eval_data is not None else {}")
	line("")
	formats := make([]string, 0, len(cfg.Export))
	for _, f := range cfg.Export {
		formats = append(formats, exportEnums[f])
	}
	line("os.makedirs(EXPORT_DIR, exist_ok=True)")
	switch cfg.Quantization {
	case QuantizationDynamic:
		line("quantization_config = QuantizationConfig.for_dynamic()")
	case QuantizationInt8:
		line("quantization_config = QuantizationConfig.for_int8(train_data)")
	case QuantizationFloat16:
		line("quantization_config = QuantizationConfig.for_float16()")
	default:
		line("quantization_config = None")
	}
	line("model.export(")
	line("    export_dir=EXPORT_DIR,")
	line("    export_format=[%s],", strings.Join(formats, ", "))
	line("    quantization_config=quantization_config,")
	line(")")
	line("")
	line("with open(os.path.join(EXPORT_DIR, %s), \"w\") as f:", strconv.Quote(MetricsFile))
	line("    json.dump({k: float(v) for k, v in metrics.items()}, f)")
	return script.String(), nil
}
