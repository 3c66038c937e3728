package policy

import (
	"log/slog"
	"strings"
)

// Mode is the mitigation policy applied to rendered output.
type Mode string

const (
	// ModeOff renders input raw, unescaped.
	ModeOff Mode = "off"
	// ModeLog escapes output and records suspicious input.
	ModeLog Mode = "log"
	// ModeBlock replaces suspicious output with BlockedPlaceholder.
	ModeBlock Mode = "block"
)

// Modes lists the recognized modes.
var Modes = []Mode{ModeOff, ModeLog, ModeBlock}

// String returns the mode label.
func (m Mode) String() string {
	return string(m)
}

// Protected reports whether the mode escapes output and adds headers.
func (m Mode) Protected() bool {
	return m == ModeLog || m == ModeBlock
}

// ParseMode normalizes a configured value. Anything unrecognized is ModeOff.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLog:
		return ModeLog
	case ModeBlock:
		return ModeBlock
	default:
		return ModeOff
	}
}

// ModeSource exposes the configured SECURITY_MODE value.
type ModeSource interface {
	SecurityMode() string
}

// StaticMode is a ModeSource with a fixed value.
type StaticMode string

// SecurityMode implements ModeSource.
func (s StaticMode) SecurityMode() string {
	return string(s)
}

// ResolveMode reads the current mode from src. A nil or failing source
// yields ModeOff.
//
// Falling back to off means protections silently disable when the source
// is unavailable; callers that care should validate configuration at
// startup.
func ResolveMode(src ModeSource) (mode Mode) {
	if src == nil {
		return ModeOff
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Security mode source failed, falling back to off", "panic", r)
			mode = ModeOff
		}
	}()
	return ParseMode(src.SecurityMode())
}
