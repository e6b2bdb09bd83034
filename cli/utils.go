package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/suas-odlc/odlc/config"
	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	printf(w, format, a...)
}

// loadConfig reads the project file named by --config. A missing odlc.json yields the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.ReadOrDefault(c.Path(generalFlagConfig))
	if err != nil {
		return nil, err
	}
	if c.Bool(generalFlagDebug) {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger returns a logger writing to the error writer of the app.
func newLogger(c *cli.Context, cfg *config.Config) logging.Logger {
	logger := logging.NewBlankLogger("odlc")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if path := c.Path(generalFlagLogFile); path != "" {
		logger.AddAppender(logging.NewFileAppender(path, 100))
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.INFO)
	}
	logging.ReplaceGlobal(logger)
	return logger
}

// newProgress shows spinners only when the error writer is a terminal.
func newProgress(c *cli.Context, steps ...*Step) *ProgressManager {
	enabled := !c.Bool(generalFlagNoProgress) && isTerminal(c.App.ErrWriter)
	return NewProgressManager(c.App.ErrWriter, steps, WithProgressOutput(enabled))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// parseSize parses WIDTHxHEIGHT.
func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, errors.Errorf("size %q is not WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.Errorf("size %q must be positive", s)
	}
	return width, height, nil
}

// recordPaths expands the arguments to record files. A directory stands for the record files of
// every split written into it.
func recordPaths(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.New("record files or a dataset directory are required")
	}
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		for _, split := range dataset.Splits() {
			files, err := dataset.PartitionFiles(arg, split)
			if err != nil {
				return nil, err
			}
			found = append(found, files...)
		}
		if len(found) == 0 {
			return nil, errors.Errorf("no record files in %s", arg)
		}
		out = append(out, found...)
	}
	return out, nil
}
