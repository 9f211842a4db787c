package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const envFileHeader = "# Air quality monitor configuration\n"

// ParseEnvFile reads KEY=value lines in dotenv syntax: # comments, an
// optional "export " prefix, single or double quoted values.
func ParseEnvFile(r io.Reader) (map[string]string, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse env file")
	}
	return values, nil
}

// WriteEnvFile writes values sorted by key. The file is replaced
// atomically and is readable by the owner only since it holds credentials.
func WriteEnvFile(path string, values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "marshal env file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".env-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(envFileHeader + content + "\n"); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace env file")
}
