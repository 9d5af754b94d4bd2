package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/teelog/internal/errors"
)

const fileHeader = `# teelog configuration
#
# Every key can also be set through the environment, e.g.
# TEELOG_CAPTURE_ECHO=off or TEELOG_LOGGING_LEVEL=debug.
#
# capture.echo: auto (echo when stdout is a terminal), on, off
# capture.stop_timeout_ms: 0 waits for the reader indefinitely
# capture.keep: previous transcripts archived as <output>.1, .2, ...
# logging.dir: empty means the XDG state directory

`

// Marshal renders cfg as YAML with the explanatory header.
func Marshal(cfg *Config) ([]byte, error) {
	body, err := Encode(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte(fileHeader), body...), nil
}

// Encode renders cfg as plain YAML.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path on fs. It refuses
// to overwrite an existing file.
func WriteDefault(fs afero.Fs, path string) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return errors.Wrap(err, "failed to check config file")
	}
	if exists {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}
