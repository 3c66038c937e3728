package policy

import (
	"html"
	"log/slog"
)

// BlockedPlaceholder replaces suspicious output in block mode.
const BlockedPlaceholder = "[blocked by simple context-based filter]"

// Outcome labels describe what Secure did with a value.
const (
	OutcomeRaw     = "raw"
	OutcomeEscaped = "escaped"
	OutcomeBlocked = "blocked"
)

// EventRecorder receives security events. Implementations must be safe for
// concurrent use; the securer ignores any failure they raise.
type EventRecorder interface {
	RecordEvent(level slog.Level, message string, fields map[string]any)
}

// Observer receives per-call classification and securing outcomes.
type Observer interface {
	ObserveAnalysis(a Analysis)
	ObserveOutcome(mode Mode, outcome string)
	ObserveRecorderFailure()
}

// Securer decides how a value is rendered under a given mode.
type Securer struct {
	classifier *Classifier
	recorder   EventRecorder
	observer   Observer
}

// NewSecurer creates a securer. recorder and observer may be nil.
func NewSecurer(classifier *Classifier, recorder EventRecorder, observer Observer) *Securer {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Securer{
		classifier: classifier,
		recorder:   recorder,
		observer:   observer,
	}
}

// WithRecorder returns a copy of the securer that reports to recorder.
func (s *Securer) WithRecorder(recorder EventRecorder) *Securer {
	cp := *s
	cp.recorder = recorder
	return &cp
}

// Classifier returns the classifier used by the securer.
func (s *Securer) Classifier() *Classifier {
	return s.classifier
}

// Analyze classifies value and reports the analysis to the observer.
func (s *Securer) Analyze(value, context string) Analysis {
	a := s.classifier.Analyze(value, context)
	if s.observer != nil {
		s.observer.ObserveAnalysis(a)
	}
	return a
}

// Secure returns the render-ready form of value.
//
// In ModeOff the value is returned raw and not analyzed. In ModeLog it is
// HTML-escaped and suspicious input is recorded. In ModeBlock suspicious
// input is replaced by BlockedPlaceholder and anything else is escaped.
// Escaping does not depend on context; context is only carried into
// recorded events.
func (s *Securer) Secure(value, context string, mode Mode) string {
	if mode != ModeLog && mode != ModeBlock {
		return s.apply(value, context, ModeOff, Analysis{})
	}
	return s.apply(value, context, mode, s.Analyze(value, context))
}

// SecureAnalyzed is Secure for callers that also report the analysis. The
// value is analyzed exactly once, in every mode, and observed once.
func (s *Securer) SecureAnalyzed(value, context string, mode Mode) (string, Analysis) {
	a := s.Analyze(value, context)
	return s.apply(value, context, mode, a), a
}

func (s *Securer) apply(value, context string, mode Mode, a Analysis) string {
	switch mode {
	case ModeLog:
		if a.Suspicious {
			s.record(slog.LevelWarn, "Suspicious input detected", map[string]any{
				"context": context,
				"reasons": a.Reasons,
				"matches": a.Matches,
				"value":   value,
			})
		}
		s.outcome(mode, OutcomeEscaped)
		return Escape(value)
	case ModeBlock:
		if a.Suspicious {
			s.outcome(mode, OutcomeBlocked)
			return BlockedPlaceholder
		}
		s.outcome(mode, OutcomeEscaped)
		return Escape(value)
	default:
		s.outcome(ModeOff, OutcomeRaw)
		return value
	}
}

// record forwards an event to the recorder, discarding any failure.
func (s *Securer) record(level slog.Level, message string, fields map[string]any) {
	if s.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && s.observer != nil {
			s.observer.ObserveRecorderFailure()
		}
	}()
	s.recorder.RecordEvent(level, message, fields)
}

func (s *Securer) outcome(mode Mode, outcome string) {
	if s.observer != nil {
		s.observer.ObserveOutcome(mode, outcome)
	}
}

// Escape entity-escapes the HTML-significant characters < > & " '.
// It is not idempotent: existing entities are escaped again.
func Escape(value string) string {
	return html.EscapeString(value)
}
