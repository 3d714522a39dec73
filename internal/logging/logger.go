// Package logging builds the zerolog loggers used across the sweep. Every
// event passes through a redacting writer before it reaches the terminal,
// so a credential value logged by mistake never appears in clear text.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field name fragments whose string values are replaced before output.
// Matching is case-insensitive and by substring, so "aws_secret_key" and
// "SecretAccessKey" are both caught.
var secretFieldNames = []string{
	"secretaccesskey",
	"sessiontoken",
	"token",
	"password",
	"secret",
	"secret_key",
	"secretkey",
	"credentials",
	"access_token",
	"accesstoken",
}

// RedactingWriter rewrites each zerolog event before forwarding it: any
// top-level string field whose name looks secret has its value replaced by
// a hash placeholder. Lines that are not JSON objects pass through as-is.
type RedactingWriter struct {
	inner io.Writer
}

// NewRedactingWriter wraps inner with field-value redaction.
func NewRedactingWriter(inner io.Writer) *RedactingWriter {
	return &RedactingWriter{inner: inner}
}

func (rw *RedactingWriter) Write(p []byte) (n int, err error) {
	var fields map[string]any
	if json.Unmarshal(p, &fields) != nil {
		return rw.inner.Write(p)
	}

	changed := false
	for name, value := range fields {
		s, ok := value.(string)
		if !ok || !IsSecretField(name) {
			continue
		}
		fields[name] = RedactValue(s)
		changed = true
	}
	if !changed {
		return rw.inner.Write(p)
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return rw.inner.Write(p)
	}
	out = append(out, '\n')
	if _, err := rw.inner.Write(out); err != nil {
		return 0, err
	}
	// Report the caller's bytes as consumed; the rewrite changed the length.
	return len(p), nil
}

// NewLogger creates the console logger for a sweep. runID, when non-empty,
// is attached to every record so log lines from one run can be correlated.
func NewLogger(level string, runID string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(NewRedactingWriter(console)).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "dbsweep").
		Logger()

	if runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}

	return logger
}

// IsSecretField reports whether a field name marks a value that must not be
// logged in clear text.
func IsSecretField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, secret := range secretFieldNames {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}

// RedactValue replaces a secret with a placeholder carrying a short hash
// prefix, enough to tell two values apart without revealing either.
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return "[REDACTED:sha256:" + hex.EncodeToString(h[:])[:8] + "]"
}
