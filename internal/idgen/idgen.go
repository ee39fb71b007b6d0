// Package idgen generates record and instance identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// RecordPrefix starts every log record ID.
	RecordPrefix = "lg-"
	// InstancePrefix starts the per-process origin ID used on the event bus.
	InstancePrefix = "inst-"
)

// alphabet is URL- and subject-safe so IDs can appear in NATS subjects and
// query strings without escaping.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
const Length = 12

// RecordID returns a new log record ID.
func RecordID() (string, error) {
	return withPrefix(RecordPrefix)
}

// InstanceID returns a new origin ID for this process.
func InstanceID() (string, error) {
	return withPrefix(InstancePrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
