package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Spec is the declaration format used in prompts.yaml.
type Spec struct {
	Name    PromptName `yaml:"name"`
	Version int        `yaml:"version"`
	System  string     `yaml:"system"`
	User    string     `yaml:"user"`
}

type specFile struct {
	Prompts []Spec `yaml:"prompts"`
}

// ParseSpecs decodes a prompts document.
func ParseSpecs(data []byte) ([]Spec, error) {
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode prompts yaml: %w", err)
	}
	if len(f.Prompts) == 0 {
		return nil, fmt.Errorf("prompts yaml declares no prompts")
	}
	return f.Prompts, nil
}

// MakeTemplate compiles a Spec into a Template.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	if strings.TrimSpace(s.System) == "" {
		return Template{}, fmt.Errorf("missing system text for %s", s.Name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", s.Name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", s.Name, err)
	}
	render := func(t *template.Template, in Input) (string, error) {
		var b bytes.Buffer
		if err := t.Execute(&b, in); err != nil {
			return "", err
		}
		return strings.TrimSpace(b.String()), nil
	}
	return Template{
		Name:    s.Name,
		Version: s.Version,
		System:  func(in Input) (string, error) { return render(sysT, in) },
		User:    func(in Input) (string, error) { return render(userT, in) },
	}, nil
}
