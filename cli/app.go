// Package cli contains the odlc command line: dataset generation and import, record inspection,
// training and the path planner demo.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"github.com/suas-odlc/odlc/config"
)

const (
	generalFlagConfig     = "config"
	generalFlagDebug      = "debug"
	generalFlagNoProgress = "no-progress"
	generalFlagLogFile    = "log-file"

	generateFlagCount       = "count"
	generateFlagTrain       = "train"
	generateFlagValidation  = "validation"
	generateFlagTest        = "test"
	generateFlagSeed        = "seed"
	generateFlagOut         = "out"
	generateFlagBackgrounds = "backgrounds"
	generateFlagSize        = "size"
	generateFlagMaxTargets  = "max-targets"
	generateFlagShardSize   = "shard-size"
	generateFlagFormat      = "format"

	importFlagVOC    = "voc"
	importFlagJSONL  = "jsonl"
	importFlagImages = "images"

	recordsFlagOut    = "out"
	recordsFlagLimit  = "limit"
	recordsFlagFormat = "format"

	trainFlagDataset      = "dataset"
	trainFlagExport       = "export"
	trainFlagModel        = "model"
	trainFlagEpochs       = "epochs"
	trainFlagBatchSize    = "batch-size"
	trainFlagRunner       = "runner"
	trainFlagPython       = "python"
	trainFlagImage        = "image"
	trainFlagQuantization = "quantization"
	trainFlagDryRun       = "dry-run"

	planFlagObstacles = "obstacles"
	planFlagSeed      = "seed"
	planFlagPlot      = "plot"
	planFlagWaypoints = "waypoints"
)

func splitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  generateFlagTrain,
			Usage: "share of samples in the train split",
		},
		&cli.Float64Flag{
			Name:  generateFlagValidation,
			Usage: "share of samples in the validation split",
		},
		&cli.Float64Flag{
			Name:  generateFlagTest,
			Usage: "share of samples in the test split",
		},
		&cli.Int64Flag{
			Name:  generateFlagSeed,
			Usage: "seed of the split shuffle and of synthetic sampling",
		},
		&cli.PathFlag{
			Name:    generateFlagOut,
			Aliases: []string{"o"},
			Usage:   "output `DIR` for record files",
		},
		&cli.IntFlag{
			Name:  generateFlagShardSize,
			Usage: "maximum records per file, 0 for one file per split",
		},
	}
}

// NewApp returns the odlc application writing to out and errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "odlc",
		Usage:           "build object detection datasets of aerial targets and train detectors on them",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultFile,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  generalFlagNoProgress,
				Usage: "do not show progress spinners",
			},
			&cli.PathFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated every 100MB",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "generate a synthetic dataset",
				UsageText: "odlc generate --count N --out DIR [other options]",
				Flags: append(splitFlags(),
					&cli.IntFlag{
						Name:    generateFlagCount,
						Aliases: []string{"n"},
						Usage:   "number of samples",
					},
					&cli.PathFlag{
						Name:  generateFlagBackgrounds,
						Usage: "`DIR` of aerial background images, generated noise when unset",
					},
					&cli.StringFlag{
						Name:  generateFlagSize,
						Usage: "image size as WIDTHxHEIGHT",
					},
					&cli.IntFlag{
						Name:  generateFlagMaxTargets,
						Usage: "maximum targets per image",
					},
					&cli.StringFlag{
						Name:  generateFlagFormat,
						Usage: "image encoding: jpeg or png",
					},
				),
				Action: GenerateAction,
			},
			{
				Name:      "import",
				Usage:     "convert annotated imagery to record files",
				UsageText: "odlc import (--voc DIR | --jsonl FILE) [--images DIR] --out DIR [other options]",
				Flags: append(splitFlags(),
					&cli.PathFlag{
						Name:  importFlagVOC,
						Usage: "`DIR` of Pascal VOC annotation files",
					},
					&cli.PathFlag{
						Name:  importFlagJSONL,
						Usage: "JSON Lines annotation `FILE`",
					},
					&cli.PathFlag{
						Name:  importFlagImages,
						Usage: "`DIR` the annotations' images are relative to",
					},
				),
				Action: ImportAction,
			},
			{
				Name:      "inspect",
				Usage:     "verify record files and print their statistics",
				ArgsUsage: "<record file or dataset dir>...",
				Action:    InspectAction,
			},
			{
				Name:      "preview",
				Usage:     "write record images with their boxes drawn",
				ArgsUsage: "<record file or dataset dir>...",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     recordsFlagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "output `DIR` for preview images",
					},
					&cli.IntFlag{
						Name:  recordsFlagLimit,
						Value: 20,
						Usage: "maximum images to write, 0 for all",
					},
				},
				Action: PreviewAction,
			},
			{
				Name:      "export",
				Usage:     "convert record files back to annotated imagery",
				ArgsUsage: "<record file or dataset dir>...",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     recordsFlagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "output `DIR`",
					},
					&cli.StringFlag{
						Name:  recordsFlagFormat,
						Value: exportFormatVOC,
						Usage: "annotation format: voc or jsonl",
					},
				},
				Action: ExportAction,
			},
			{
				Name:  "train",
				Usage: "train a detector on a generated dataset",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  trainFlagDataset,
						Usage: "dataset `DIR` written by generate or import",
					},
					&cli.PathFlag{
						Name:  trainFlagExport,
						Usage: "`DIR` for the exported model",
					},
					&cli.StringFlag{
						Name:  trainFlagModel,
						Usage: "model spec, one of efficientdet_lite0 to efficientdet_lite4",
					},
					&cli.IntFlag{
						Name:  trainFlagEpochs,
						Usage: "training epochs",
					},
					&cli.IntFlag{
						Name:  trainFlagBatchSize,
						Usage: "training batch size",
					},
					&cli.StringFlag{
						Name:  trainFlagRunner,
						Usage: "local or docker",
					},
					&cli.StringFlag{
						Name:  trainFlagPython,
						Usage: "python interpreter of the local runner",
					},
					&cli.StringFlag{
						Name:  trainFlagImage,
						Usage: "container image of the docker runner",
					},
					&cli.StringFlag{
						Name:  trainFlagQuantization,
						Usage: "none, dynamic, int8 or float16",
					},
					&cli.BoolFlag{
						Name:  trainFlagDryRun,
						Usage: "print the training program instead of running it",
					},
				},
				Action: TrainAction,
			},
			{
				Name:  "plan",
				Usage: "plan flight paths over random obstacles",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  planFlagObstacles,
						Usage: "number of obstacles",
					},
					&cli.Int64Flag{
						Name:  planFlagSeed,
						Usage: "obstacle seed",
					},
					&cli.PathFlag{
						Name:  planFlagPlot,
						Usage: "write a plot of the surface and paths to `FILE` (.png or .svg)",
					},
					&cli.PathFlag{
						Name:  planFlagWaypoints,
						Usage: "write the waypoints of every path as json to `FILE`",
					},
				},
				Action: PlanAction,
			},
			{
				Name:            "config",
				Usage:           "work with the project file",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "schema",
						Usage:  "print the json schema of the project file",
						Action: ConfigSchemaAction,
					},
					{
						Name:   "defaults",
						Usage:  "print the default project file",
						Action: ConfigDefaultsAction,
					},
				},
			},
			{
				Name:   "version",
				Usage:  "print version info for this program",
				Action: VersionAction,
			},
		},
	}
}
