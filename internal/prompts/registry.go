package prompts

import (
	_ "embed"
	"fmt"
	"sync"
)

//go:embed prompts.yaml
var builtinYAML []byte

type Template struct {
	Name    PromptName
	Version int
	System  func(Input) (string, error)
	User    func(Input) (string, error)
}

// Registry holds compiled templates by name.
type Registry struct {
	templates map[PromptName]Template
}

// NewRegistry compiles every spec. Duplicate names are an error.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{templates: make(map[PromptName]Template, len(specs))}
	for _, s := range specs {
		if _, dup := r.templates[s.Name]; dup {
			return nil, fmt.Errorf("duplicate prompt: %s", s.Name)
		}
		t, err := MakeTemplate(s)
		if err != nil {
			return nil, err
		}
		r.templates[s.Name] = t
	}
	return r, nil
}

// LoadRegistry compiles a prompts YAML document.
func LoadRegistry(data []byte) (*Registry, error) {
	specs, err := ParseSpecs(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(specs)
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry compiled from the embedded prompts.yaml.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := LoadRegistry(builtinYAML)
		if err != nil {
			panic(fmt.Sprintf("prompts: embedded prompts.yaml: %v", err))
		}
		defaultReg = r
	})
	return defaultReg
}

// Has reports whether name is registered.
func (r *Registry) Has(name PromptName) bool {
	_, ok := r.templates[name]
	return ok
}

// Build renders the named template.
func (r *Registry) Build(name PromptName, in Input) (Prompt, error) {
	t, ok := r.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	sys, err := t.System(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s system render: %w", name, err)
	}
	user, err := t.User(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s user render: %w", name, err)
	}
	return Prompt{Name: string(t.Name), Version: t.Version, System: sys, User: user}, nil
}

// Build renders a template from the default registry.
func Build(name PromptName, in Input) (Prompt, error) {
	return Default().Build(name, in)
}
