package fs

import (
	"fmt"
	"os"
)

// LoadVolume reads a volume image from path.
func LoadVolume(path string) ([]byte, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(image) < BlockSize {
		return nil, fmt.Errorf("%s: %w", path, ErrImageTooSmall)
	}
	return image, nil
}

// SaveVolume writes image to path, replacing any existing file.
func SaveVolume(path string, image []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, image, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
