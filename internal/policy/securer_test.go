package policy

import (
	"log/slog"
	"sync"
	"testing"
)

type recordedEvent struct {
	level   slog.Level
	message string
	fields  map[string]any
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) RecordEvent(level slog.Level, message string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{level: level, message: message, fields: fields})
}

type panickingRecorder struct{}

func (panickingRecorder) RecordEvent(slog.Level, string, map[string]any) {
	panic("sink unavailable")
}

type countingObserver struct {
	analyses         int
	outcomes         map[string]int
	recorderFailures int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: make(map[string]int)}
}

func (o *countingObserver) ObserveAnalysis(Analysis) { o.analyses++ }
func (o *countingObserver) ObserveOutcome(mode Mode, outcome string) {
	o.outcomes[string(mode)+"/"+outcome]++
}
func (o *countingObserver) ObserveRecorderFailure() { o.recorderFailures++ }

func TestSecureScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input string
		mode  Mode
		want  string
	}{
		{"script off", "<script>alert(1)</script>", ModeOff, "<script>alert(1)</script>"},
		{"script log", "<script>alert(1)</script>", ModeLog, "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"script block", "<script>alert(1)</script>", ModeBlock, BlockedPlaceholder},
		{"empty off", "", ModeOff, ""},
		{"empty log", "", ModeLog, ""},
		{"empty block", "", ModeBlock, ""},
		{"hello off", "hello world", ModeOff, "hello world"},
		{"hello log", "hello world", ModeLog, "hello world"},
		{"hello block", "hello world", ModeBlock, "hello world"},
		{"benign markup log", "<b>hi</b>", ModeLog, "&lt;b&gt;hi&lt;/b&gt;"},
		{"benign markup block", "<b>hi</b>", ModeBlock, "&lt;b&gt;hi&lt;/b&gt;"},
		{"quotes escaped", `a "b" 'c' & d`, ModeLog, "a &#34;b&#34; &#39;c&#39; &amp; d"},
		{"image block", "<img src=x onerror=alert(1)>", ModeBlock, BlockedPlaceholder},
	}

	s := NewSecurer(NewClassifier(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Secure(tt.input, "html", tt.mode)
			if got != tt.want {
				t.Errorf("Secure(%q, %s) = %q, want %q", tt.input, tt.mode, got, tt.want)
			}
		})
	}
}

func TestSecureOffIsIdentity(t *testing.T) {
	s := NewSecurer(nil, nil, nil)
	inputs := []string{
		"",
		"plain",
		"<script>alert(document.cookie)</script>",
		"&amp; already escaped",
		"\"><svg onload=alert(1)>",
	}
	for _, input := range inputs {
		if got := s.Secure(input, "text", ModeOff); got != input {
			t.Errorf("Secure(%q, off) = %q", input, got)
		}
	}
}

func TestSecureBlockReturnsSentinelForSuspicious(t *testing.T) {
	s := NewSecurer(nil, nil, nil)
	c := NewClassifier()
	inputs := []string{
		"<script>",
		"javascript:void(0)",
		"x onmouseover=y",
		"<!--",
		"location.href='//evil'",
		"<meta http-equiv=\"refresh\" content=0>",
	}
	for _, input := range inputs {
		if !c.Analyze(input, "html").Suspicious {
			t.Fatalf("fixture %q should be suspicious", input)
		}
		if got := s.Secure(input, "html", ModeBlock); got != BlockedPlaceholder {
			t.Errorf("Secure(%q, block) = %q, want placeholder", input, got)
		}
	}
}

func TestSecureLogEscapesOnce(t *testing.T) {
	s := NewSecurer(nil, nil, nil)

	input := "&lt;b&gt;"
	once := s.Secure(input, "html", ModeLog)
	if once != Escape(input) {
		t.Errorf("log mode = %q, want single escape %q", once, Escape(input))
	}
	if once != "&amp;lt;b&amp;gt;" {
		t.Errorf("log mode = %q", once)
	}
	if Escape(once) == once {
		t.Error("escaping should not be a fixed point")
	}
}

func TestSecureLogRecordsSuspicious(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSecurer(NewClassifier(), rec, nil)

	value := "<script>alert(1)</script>"
	s.Secure(value, "html", ModeLog)

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.level != slog.LevelWarn {
		t.Errorf("level = %v, want warn", ev.level)
	}
	if ev.message != "Suspicious input detected" {
		t.Errorf("message = %q", ev.message)
	}
	if ev.fields["context"] != "html" {
		t.Errorf("context field = %v", ev.fields["context"])
	}
	if ev.fields["value"] != value {
		t.Errorf("value field = %v, want raw value", ev.fields["value"])
	}
	reasons, ok := ev.fields["reasons"].([]string)
	if !ok || len(reasons) != 5 {
		t.Errorf("reasons field = %v", ev.fields["reasons"])
	}
	matches, ok := ev.fields["matches"].([]Match)
	if !ok || len(matches) != 3 {
		t.Errorf("matches field = %v", ev.fields["matches"])
	}
}

func TestSecureOnlyLogModeRecords(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSecurer(NewClassifier(), rec, nil)

	s.Secure("hello world", "text", ModeLog)
	s.Secure("<script>", "text", ModeOff)
	s.Secure("<script>", "text", ModeBlock)

	if len(rec.events) != 0 {
		t.Errorf("expected no events, got %+v", rec.events)
	}
}

func TestSecureSwallowsRecorderFailure(t *testing.T) {
	obs := newCountingObserver()
	s := NewSecurer(NewClassifier(), panickingRecorder{}, obs)

	got := s.Secure("<script>", "html", ModeLog)
	if got != "&lt;script&gt;" {
		t.Errorf("Secure = %q, want escaped output despite recorder failure", got)
	}
	if obs.recorderFailures != 1 {
		t.Errorf("recorder failures = %d, want 1", obs.recorderFailures)
	}
}

func TestSecureObserver(t *testing.T) {
	obs := newCountingObserver()
	s := NewSecurer(NewClassifier(), nil, obs)

	s.Secure("<script>", "html", ModeBlock)
	s.Secure("hello", "html", ModeBlock)
	s.Secure("hello", "html", ModeLog)
	s.Secure("hello", "html", ModeOff)

	if obs.analyses != 3 {
		t.Errorf("analyses = %d, want 3", obs.analyses)
	}
	want := map[string]int{
		"block/blocked": 1,
		"block/escaped": 1,
		"log/escaped":   1,
		"off/raw":       1,
	}
	for k, v := range want {
		if obs.outcomes[k] != v {
			t.Errorf("outcome %s = %d, want %d", k, obs.outcomes[k], v)
		}
	}
}

func TestSecureAnalyzed(t *testing.T) {
	for _, mode := range []Mode{ModeOff, ModeLog, ModeBlock} {
		t.Run(string(mode), func(t *testing.T) {
			obs := newCountingObserver()
			rec := &fakeRecorder{}
			s := NewSecurer(NewClassifier(), rec, obs)

			got, a := s.SecureAnalyzed("<script>x</script>", "html", mode)
			if want := s.Secure("<script>x</script>", "html", mode); got != want {
				t.Errorf("SecureAnalyzed output = %q, Secure = %q", got, want)
			}
			if !a.Suspicious || a.MainCategory != "script_tag" {
				t.Errorf("analysis = %+v, want suspicious script_tag", a)
			}

			wantAnalyses := 1
			if mode.Protected() {
				// the Secure call above analyzes too
				wantAnalyses = 2
			}
			if obs.analyses != wantAnalyses {
				t.Errorf("analyses = %d, want %d", obs.analyses, wantAnalyses)
			}

			wantEvents := 0
			if mode == ModeLog {
				wantEvents = 2
			}
			if len(rec.events) != wantEvents {
				t.Errorf("events = %d, want %d", len(rec.events), wantEvents)
			}
		})
	}
}

func TestWithRecorder(t *testing.T) {
	base := NewSecurer(NewClassifier(), nil, nil)
	rec := &fakeRecorder{}

	scoped := base.WithRecorder(rec)
	scoped.Secure("<script>", "html", ModeLog)
	base.Secure("<script>", "html", ModeLog)

	if len(rec.events) != 1 {
		t.Errorf("expected only the scoped securer to record, got %d events", len(rec.events))
	}
}
