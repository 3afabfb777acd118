// Package templates renders the outgoing text of every notification kind.
package templates

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/hray3182/CoachLine/internal/models"
	"go.yaml.in/yaml/v3"
)

// Data is what a template can reference.
type Data struct {
	Time       string
	Name       string
	Body       string
	Motivation string
	OwnerID    int64
	Error      string
}

const escalationKey = "escalation"

var defaults = map[string]string{
	string(models.KindMorning): "🌞 **Good morning!**\n\nTime for your morning check-in." +
		"{{if .Motivation}}\n\n_{{.Motivation}}_{{end}}",
	string(models.KindCustom):              "🔔 **{{.Name}}**\n\n{{.Body}}",
	string(models.KindPreTrainingReminder): "😉 Heads up: your training starts at {{.Time}}.",
	string(models.KindTrainingReminder):    "🚀 Time to start your training!",
	string(models.KindStopTraining):        "⏱ Did you forget to finish your training? It has been running for over an hour.",
	escalationKey:                          "⚠️ Morning notification for user `{{.OwnerID}}` could not be delivered: {{.Error}}",
}

// Set holds one parsed template per kind plus the admin escalation notice.
type Set struct {
	byKey map[string]*template.Template
}

// Default returns the built-in templates.
func Default() *Set {
	s, err := build(nil)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads overrides from a YAML file keyed by kind name (and
// "escalation"). Missing keys fall back to the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Set, error) {
	overrides := map[string]string{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for key := range overrides {
		if _, ok := defaults[key]; !ok {
			return nil, fmt.Errorf("unknown template %q", key)
		}
	}
	return build(overrides)
}

func build(overrides map[string]string) (*Set, error) {
	s := &Set{byKey: make(map[string]*template.Template, len(defaults))}
	for key, text := range defaults {
		if o, ok := overrides[key]; ok && strings.TrimSpace(o) != "" {
			text = o
		}
		tpl, err := template.New(key).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		s.byKey[key] = tpl
	}
	return s, nil
}

func (s *Set) Render(kind models.Kind, data Data) (string, error) {
	return s.render(string(kind), data)
}

func (s *Set) RenderEscalation(data Data) (string, error) {
	return s.render(escalationKey, data)
}

func (s *Set) render(key string, data Data) (string, error) {
	tpl, ok := s.byKey[key]
	if !ok {
		return "", fmt.Errorf("no template for %q", key)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return buf.String(), nil
}
