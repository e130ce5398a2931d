// Package effect declares the media effects the gateway exposes. Every effect is a
// descriptor: its accepted inputs and allow-lists, the vendor endpoint it targets,
// how its prompt and payload are built and where its result lives in the vendor
// response. One generic initiator and worker serve all of them.
package effect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/makeasinger/fxgateway/internal/model"
)

// ErrUnknownEffect is returned when no effect is registered under a name.
var ErrUnknownEffect = errors.New("unknown effect")

// Params holds validated, normalized request parameters.
type Params map[string]string

// String returns the named parameter or an empty string.
func (p Params) String(name string) string {
	return p[name]
}

// Float returns the named parameter parsed as a number, or 0.
func (p Params) Float(name string) float64 {
	f, _ := strconv.ParseFloat(p[name], 64)
	return f
}

// Input is a source media URL field.
type Input struct {
	Name     string
	Required bool
}

// Option is an enum parameter restricted to an allow-list.
type Option struct {
	Name    string
	Allowed []string
	Default string
}

// Range is a numeric parameter with inclusive bounds.
type Range struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// Text is a free-text parameter.
type Text struct {
	Name      string
	Required  bool
	MaxLength int
}

// PayloadFunc builds the vendor request body. sources maps each input name to
// the value the vendor should receive (the URL itself or an inlined data URL).
type PayloadFunc func(p Params, prompt string, sources map[string]string) map[string]any

// Effect is the declarative description of one effect route.
type Effect struct {
	Name string

	// Endpoint is the vendor path; {param} tokens are replaced by parameter values.
	Endpoint string
	Media    model.MediaKind

	Inputs  []Input
	Options []Option
	Ranges  []Range
	Texts   []Text

	// InlineSources makes the worker download every source and send it as a data URL.
	InlineSources bool

	// ResultPath locates the result URL in a JSON vendor response (gjson syntax).
	ResultPath string
	Retention  time.Duration

	Prompt  func(p Params) string
	Payload PayloadFunc
}

// EndpointFor resolves the vendor endpoint for the given parameters.
func (e *Effect) EndpointFor(p Params) string {
	endpoint := e.Endpoint
	for name, value := range p {
		endpoint = strings.ReplaceAll(endpoint, "{"+name+"}", value)
	}
	return endpoint
}

// BuildPrompt returns the prompt text for the given parameters.
func (e *Effect) BuildPrompt(p Params) string {
	if e.Prompt == nil {
		return ""
	}
	return e.Prompt(p)
}

// BuildPayload returns the vendor request body.
func (e *Effect) BuildPayload(p Params, sources map[string]string) map[string]any {
	prompt := e.BuildPrompt(p)
	if e.Payload == nil {
		body := map[string]any{"prompt": prompt}
		for name, value := range sources {
			body[name] = value
		}
		return body
	}
	return e.Payload(p, prompt, sources)
}

// Info describes the effect for the catalogue endpoint.
func (e *Effect) Info() model.EffectInfo {
	info := model.EffectInfo{
		Name:   e.Name,
		Media:  e.Media,
		Inputs: make([]model.InputInfo, 0, len(e.Inputs)),
	}
	for _, in := range e.Inputs {
		info.Inputs = append(info.Inputs, model.InputInfo{Name: in.Name, Required: in.Required})
	}
	for _, opt := range e.Options {
		info.Options = append(info.Options, model.OptionInfo{Name: opt.Name, Allowed: opt.Allowed, Default: opt.Default})
	}
	for _, r := range e.Ranges {
		info.Ranges = append(info.Ranges, model.RangeInfo{Name: r.Name, Min: r.Min, Max: r.Max, Default: r.Default})
	}
	for _, txt := range e.Texts {
		info.Texts = append(info.Texts, model.TextInfo{Name: txt.Name, Required: txt.Required, MaxLength: txt.MaxLength})
	}
	return info
}

// Registry holds effects by name in declaration order.
type Registry struct {
	effects map[string]*Effect
	order   []string
}

// NewRegistry builds a registry, rejecting duplicate or incomplete descriptors.
func NewRegistry(effects ...*Effect) (*Registry, error) {
	r := &Registry{effects: make(map[string]*Effect, len(effects))}
	for _, e := range effects {
		if e.Name == "" || e.Endpoint == "" {
			return nil, fmt.Errorf("effect %q: name and endpoint are required", e.Name)
		}
		if _, exists := r.effects[e.Name]; exists {
			return nil, fmt.Errorf("effect %q registered twice", e.Name)
		}
		if len(e.Inputs) == 0 {
			return nil, fmt.Errorf("effect %q declares no source inputs", e.Name)
		}
		r.effects[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	return r, nil
}

// Get returns the effect registered under name.
func (r *Registry) Get(name string) (*Effect, error) {
	e, ok := r.effects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, name)
	}
	return e, nil
}

// All returns every effect in declaration order.
func (r *Registry) All() []*Effect {
	out := make([]*Effect, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.effects[name])
	}
	return out
}
