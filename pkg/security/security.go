// Package security provides validation, sanitization, and limits for jobgraph.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// Limits and configuration
const (
	// MaxJobTypeNameLength is the maximum length for job type names
	MaxJobTypeNameLength = 255

	// MaxInlinePayloadSize is the largest payload carried inline in a
	// dispatch message. Managed queues cap message bodies around 256 KB;
	// 200 KB leaves headroom for the envelope. Larger payloads are
	// offloaded to the blob store and passed by reference.
	MaxInlinePayloadSize = 200 << 10

	// MaxAttempts is the hard limit for dispatch attempts per job
	MaxAttempts = 25

	// MaxConcurrency is the hard limit for worker concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validJobTypeName matches alphanumeric, hyphens, underscores, and dots
var validJobTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobTypeName validates a job type name
func ValidateJobTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidJobType
	}
	if len(name) > MaxJobTypeNameLength {
		return core.ErrJobTypeTooLong
	}
	if !validJobTypeName.MatchString(name) {
		return core.ErrInvalidJobType
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampAttempts ensures a dispatch attempt budget is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
