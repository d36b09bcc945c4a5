package readings

import (
	"fmt"
	"strings"
)

// Format selects the JSON export schema of a run.
type Format string

const (
	FormatMQ    Format = "MQ"
	FormatCEEPS Format = "CEEPS"
)

// ParseFormat parses a format selector case-insensitively.
func ParseFormat(value string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(FormatMQ):
		return FormatMQ, nil
	case string(FormatCEEPS):
		return FormatCEEPS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}
