package cli

import (
	"encoding/json"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/suas-odlc/odlc/config"
)

// Version and GitRevision are replaced by LD flags.
var (
	Version     = ""
	GitRevision = ""
)

// ConfigSchemaAction is the corresponding Action for 'config schema'.
func ConfigSchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// ConfigDefaultsAction is the corresponding Action for 'config defaults'.
func ConfigDefaultsAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Default(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// VersionAction is the corresponding Action for 'version'.
func VersionAction(c *cli.Context) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("error reading build info")
	}
	if c.Bool(generalFlagDebug) {
		printf(c.App.Writer, "%s", info.String())
	}
	revision := GitRevision
	if revision == "" {
		revision = "?"
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 8 {
				revision = setting.Value[:8]
			}
		}
	}
	version := Version
	if version == "" {
		version = "(dev)"
	}
	printf(c.App.Writer, "odlc %s git=%s go=%s", version, revision, info.GoVersion)
	return nil
}
