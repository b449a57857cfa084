package devnet

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// EnvFRRImage overrides the router image.
const EnvFRRImage = "BFDCONVERGE_FRR_IMAGE"

// LoadImagesEnvFile loads image overrides from an env file. A missing file is
// not an error, and variables already set in the environment take precedence.
func LoadImagesEnvFile(log *slog.Logger, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Debug("--> No images env file", "path", path)
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	log.Debug("--> Loaded images env file", "path", path, "frrImage", FRRImage())
	return nil
}

// FRRImage returns the router image from the environment, or DefaultFRRImage.
func FRRImage() string {
	if image := os.Getenv(EnvFRRImage); image != "" {
		return image
	}
	return DefaultFRRImage
}
