package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Read reads a config from the given file. ${VAR} placeholders are replaced from the
// environment first.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// ReadOrDefault reads filePath, or returns the defaults when filePath is DefaultFile and it
// does not exist.
func ReadOrDefault(filePath string) (*Config, error) {
	if filePath == DefaultFile {
		if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return Read(filePath)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from. The file is JSON5, so comments and
// unquoted keys are accepted.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", originalPath)
	}
	var doc interface{}
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", originalPath)
	}
	// re-encode as plain json for the strict decoder
	plain, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", originalPath)
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", originalPath)
	}
	cfg.ConfigFilePath = originalPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
