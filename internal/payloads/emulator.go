package payloads

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Emulation outcomes
const (
	OutcomeNoScript    = "no_script"
	OutcomeExecuted    = "executed"
	OutcomeExfiltrated = "exfiltrated"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
)

// DefaultCookie is the fake document.cookie seen by emulated scripts.
const DefaultCookie = "session=lab-7f3a9c"

// Request is an outgoing request a script tried to make
type Request struct {
	Sink string `json:"sink"`
	URL  string `json:"url"`
	// CarriesCookie is true when the URL contains the session cookie value.
	CarriesCookie bool `json:"carries_cookie"`
	ToCollector   bool `json:"to_collector"`
}

// SinkCall is a call to a DOM sink other than a network request
type SinkCall struct {
	Sink     string `json:"sink"`
	Argument string `json:"argument"`
}

// Result describes what a payload's scripts did in the sandbox
type Result struct {
	Outcome  string     `json:"outcome"`
	Scripts  []Script   `json:"scripts"`
	Requests []Request  `json:"requests"`
	Sinks    []SinkCall `json:"sinks"`
	Alerts   []string   `json:"alerts"`
	Error    string     `json:"error,omitempty"`
}

// Exfiltrated reports whether any request carried the cookie
func (r Result) Exfiltrated() bool {
	for _, req := range r.Requests {
		if req.CarriesCookie {
			return true
		}
	}
	return false
}

// Emulator runs payload scripts in a goja runtime with a fake browser
// environment. Nothing leaves the process: network APIs only record the
// URLs they were given. An Emulator is safe for concurrent use; every run
// gets its own runtime.
type Emulator struct {
	Timeout   time.Duration
	Cookie    string
	Collector string
	Origin    string
}

// NewEmulator returns an emulator with a fixed fake cookie
func NewEmulator(timeout time.Duration, collector string) *Emulator {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Emulator{
		Timeout:   timeout,
		Cookie:    DefaultCookie,
		Collector: cleanCollector(collector),
		Origin:    "http://lab.local",
	}
}

// RunPayload extracts the scripts from markup and runs them in order in
// one page.
func (e *Emulator) RunPayload(ctx context.Context, markup string) Result {
	scripts := ExtractScripts(markup)
	if len(scripts) == 0 {
		return Result{Outcome: OutcomeNoScript, Scripts: []Script{}, Requests: []Request{}, Sinks: []SinkCall{}, Alerts: []string{}}
	}
	return e.run(ctx, scripts)
}

// Run executes a single script
func (e *Emulator) Run(ctx context.Context, code string) Result {
	return e.run(ctx, []Script{{Source: SourceScriptTag, Origin: "script", Code: code}})
}

// Scripts get this many timer callbacks after they finish; a page still
// scheduling more is reported as timed out.
const maxTimerRuns = 64

func (e *Emulator) run(ctx context.Context, scripts []Script) Result {
	page := newPage(e)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		page.vm.Interrupt(OutcomeTimeout)
	})
	defer stop()

	var runErr error
	for _, s := range scripts {
		if _, err := page.vm.RunString(s.Code); err != nil {
			runErr = err
			break
		}
	}
	pending := false
	if runErr == nil {
		runErr, pending = page.drainTimers(ctx)
	}
	page.vm.ClearInterrupt()

	res := page.result()
	res.Scripts = scripts

	var interrupted *goja.InterruptedError
	switch {
	case errors.As(runErr, &interrupted), pending && ctx.Err() != nil:
		res.Outcome = OutcomeTimeout
		res.Error = "script did not finish within " + e.Timeout.String()
	case res.Exfiltrated():
		// A request that already left counts even if a later statement threw.
		res.Outcome = OutcomeExfiltrated
		if runErr != nil {
			res.Error = runErr.Error()
		}
	case pending:
		res.Outcome = OutcomeTimeout
		res.Error = fmt.Sprintf("timers still scheduled after %d runs", maxTimerRuns)
	case runErr != nil:
		res.Outcome = OutcomeError
		res.Error = runErr.Error()
	default:
		res.Outcome = OutcomeExecuted
	}
	return res
}

// drainTimers runs queued timer callbacks in order. A callback that throws
// does not stop later ones; the first error is returned. An interrupt ends
// the drain. pending reports whether callbacks were left unrun.
func (p *page) drainTimers(ctx context.Context) (firstErr error, pending bool) {
	for runs := 0; len(p.timers) > 0; runs++ {
		if runs == maxTimerRuns || ctx.Err() != nil {
			return firstErr, true
		}
		t := p.timers[0]
		p.timers = p.timers[1:]

		var err error
		if t.fn != nil {
			_, err = t.fn(goja.Undefined())
		} else {
			_, err = p.vm.RunString(t.code)
		}
		if err == nil {
			continue
		}
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return err, len(p.timers) > 0
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr, false
}

// page is one emulated browser document
type page struct {
	em *Emulator
	vm *goja.Runtime

	// timers is only touched from the runtime's goroutine.
	timers []timer

	mu       sync.Mutex
	requests []Request
	sinks    []SinkCall
	alerts   []string
}

// timer is a queued setTimeout or setInterval callback
type timer struct {
	id   int64
	fn   goja.Callable
	code string
}

// maxCallStackSize bounds JS recursion so a runaway payload throws instead
// of growing the stack until the timeout.
const maxCallStackSize = 512

func newPage(e *Emulator) *page {
	p := &page{em: e, vm: goja.New()}
	p.vm.SetMaxCallStackSize(maxCallStackSize)
	p.setupMockDOM()
	return p
}

func (p *page) result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Result{
		Requests: append([]Request{}, p.requests...),
		Sinks:    append([]SinkCall{}, p.sinks...),
		Alerts:   append([]string{}, p.alerts...),
	}
}

func (p *page) request(sink, url string) {
	secret := p.em.Cookie
	if _, value, ok := strings.Cut(secret, "="); ok && value != "" {
		secret = value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, Request{
		Sink:          sink,
		URL:           url,
		CarriesCookie: secret != "" && strings.Contains(url, secret),
		ToCollector:   p.em.Collector != "" && strings.Contains(url, p.em.Collector),
	})
}

func (p *page) sink(name, arg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, SinkCall{Sink: name, Argument: arg})
}

func (p *page) alert(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, msg)
}

func argString(call goja.FunctionCall, i int) string {
	if len(call.Arguments) <= i {
		return ""
	}
	return call.Arguments[i].String()
}

// setupMockDOM installs window, document, location and the network APIs
// payloads use to exfiltrate data.
func (p *page) setupMockDOM() {
	vm := p.vm
	global := vm.GlobalObject()

	vm.Set("window", global)
	vm.Set("self", global)
	vm.Set("top", global)

	// Dialogs
	for _, name := range []string{"alert", "confirm", "prompt"} {
		vm.Set(name, func(call goja.FunctionCall) goja.Value {
			p.alert(argString(call, 0))
			return goja.Undefined()
		})
	}

	console := vm.NewObject()
	console.Set("log", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	vm.Set("console", console)

	vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		decoded, err := base64.StdEncoding.DecodeString(argString(call, 0))
		if err != nil {
			panic(vm.NewTypeError("atob: invalid base64"))
		}
		return vm.ToValue(string(decoded))
	})
	vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(argString(call, 0))))
	})

	// Network
	vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		p.request("fetch", argString(call, 0))
		return p.thenable()
	})
	vm.Set("Image", func(call goja.ConstructorCall) *goja.Object {
		img := call.This
		p.defineURLProperty(img, "src", "image.src")
		return img
	})
	navigator := vm.NewObject()
	navigator.Set("userAgent", "xsslab-emulator")
	navigator.Set("sendBeacon", func(call goja.FunctionCall) goja.Value {
		p.request("navigator.sendBeacon", argString(call, 0))
		return vm.ToValue(true)
	})
	vm.Set("navigator", navigator)
	vm.Set("XMLHttpRequest", func(call goja.ConstructorCall) *goja.Object {
		xhr := call.This
		var target string
		xhr.Set("open", func(c goja.FunctionCall) goja.Value {
			target = argString(c, 1)
			return goja.Undefined()
		})
		xhr.Set("setRequestHeader", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
		xhr.Set("send", func(goja.FunctionCall) goja.Value {
			p.request("xhr", target)
			return goja.Undefined()
		})
		return xhr
	})

	// Location: assigning to it navigates, which is a request too.
	loc := vm.NewObject()
	loc.Set("origin", p.em.Origin)
	loc.Set("hostname", strings.TrimPrefix(strings.TrimPrefix(p.em.Origin, "https://"), "http://"))
	loc.Set("pathname", "/")
	loc.Set("search", "")
	loc.Set("hash", "")
	p.defineURLProperty(loc, "href", "location")
	loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		p.request("location", argString(call, 0))
		return goja.Undefined()
	})
	loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		p.request("location", argString(call, 0))
		return goja.Undefined()
	})
	loc.Set("toString", func(goja.FunctionCall) goja.Value { return loc.Get("href") })
	p.defineObjectProperty(global, "location", loc, "location")

	// Document
	doc := vm.NewObject()
	cookie := p.em.Cookie
	doc.DefineAccessorProperty("cookie",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(cookie) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			p.sink("document.cookie", argString(call, 0))
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	doc.Set("domain", loc.Get("hostname"))
	doc.Set("URL", p.em.Origin+"/")
	for _, name := range []string{"write", "writeln"} {
		sinkName := "document." + name
		doc.Set(name, func(call goja.FunctionCall) goja.Value {
			p.sink(sinkName, argString(call, 0))
			return goja.Undefined()
		})
	}
	newElement := func(call goja.FunctionCall) goja.Value {
		return p.element()
	}
	doc.Set("getElementById", newElement)
	doc.Set("querySelector", newElement)
	doc.Set("createElement", newElement)
	doc.Set("body", p.element())
	p.defineObjectProperty(doc, "location", loc, "document.location")
	vm.Set("document", doc)

	// Timers queue their callback to run after the page's scripts; string
	// callbacks are eval sinks. Intervals fire once.
	var nextTimerID int64
	for _, name := range []string{"setTimeout", "setInterval"} {
		timerName := name
		vm.Set(name, func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return vm.ToValue(0)
			}
			nextTimerID++
			if fn, ok := goja.AssertFunction(call.Arguments[0]); ok {
				p.timers = append(p.timers, timer{id: nextTimerID, fn: fn})
				return vm.ToValue(nextTimerID)
			}
			code := call.Arguments[0].String()
			p.sink(timerName, code)
			p.timers = append(p.timers, timer{id: nextTimerID, code: code})
			return vm.ToValue(nextTimerID)
		})
	}
	for _, name := range []string{"clearTimeout", "clearInterval"} {
		vm.Set(name, func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return goja.Undefined()
			}
			id := call.Arguments[0].ToInteger()
			for i, t := range p.timers {
				if t.id == id {
					p.timers = append(p.timers[:i], p.timers[i+1:]...)
					break
				}
			}
			return goja.Undefined()
		})
	}
}

// element returns a fake element whose HTML setters are sinks and whose
// src and href setters are requests.
func (p *page) element() *goja.Object {
	vm := p.vm
	el := vm.NewObject()
	for _, prop := range []string{"innerHTML", "outerHTML"} {
		name := prop
		var current goja.Value = vm.ToValue("")
		el.DefineAccessorProperty(name,
			vm.ToValue(func(goja.FunctionCall) goja.Value { return current }),
			vm.ToValue(func(call goja.FunctionCall) goja.Value {
				current = vm.ToValue(argString(call, 0))
				p.sink(name, current.String())
				return goja.Undefined()
			}),
			goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	p.defineURLProperty(el, "src", "element.src")
	p.defineURLProperty(el, "href", "element.href")
	el.Set("setAttribute", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	el.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			return call.Arguments[0]
		}
		return goja.Undefined()
	})
	el.Set("click", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	return el
}

// defineURLProperty makes obj[name] a string property whose assignment
// records a request.
func (p *page) defineURLProperty(obj *goja.Object, name, sink string) {
	vm := p.vm
	current := ""
	if name == "href" && sink == "location" {
		current = p.em.Origin + "/"
	}
	obj.DefineAccessorProperty(name,
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(current) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			current = argString(call, 0)
			p.request(sink, current)
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// defineObjectProperty exposes value as obj[name]; assigning a string to it
// navigates like location.href.
func (p *page) defineObjectProperty(obj *goja.Object, name string, value *goja.Object, sink string) {
	vm := p.vm
	obj.DefineAccessorProperty(name,
		vm.ToValue(func(goja.FunctionCall) goja.Value { return value }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			p.request(sink, argString(call, 0))
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// thenable lets fetch(...).then(...).catch(...) chains run without a
// real promise.
func (p *page) thenable() goja.Value {
	vm := p.vm
	obj := vm.NewObject()
	chain := func(goja.FunctionCall) goja.Value { return obj }
	obj.Set("then", chain)
	obj.Set("catch", chain)
	obj.Set("finally", chain)
	return obj
}
