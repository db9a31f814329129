package security

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxPayloadBytes matches the webhook body limit.
const MaxPayloadBytes = 1 << 20

// ErrPayloadTooLarge is returned when a payload file exceeds MaxPayloadBytes.
var ErrPayloadTooLarge = errors.New("payload exceeds 1 MiB")

// OpenPayload opens a payload file. A non-empty baseDir confines the path to
// that directory.
func OpenPayload(path, baseDir string) (*os.File, error) {
	var (
		clean string
		err   error
	)
	if baseDir != "" {
		clean, err = ValidatePathInDir(path, baseDir)
	} else {
		clean, err = ValidatePath(path)
	}
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is validated above
	return os.Open(clean)
}

// ReadPayload reads a payload file of at most MaxPayloadBytes.
func ReadPayload(path, baseDir string) ([]byte, error) {
	f, err := OpenPayload(path, baseDir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if len(data) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}
