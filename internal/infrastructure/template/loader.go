// Package template loads the markdown email templates. Operators may override
// any built-in template by dropping <name>.md into the configured directory.
package template

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/orris-inc/paygate/internal/shared/logger"
)

//go:embed defaults/*.md
var defaults embed.FS

var ErrTemplateNotFound = errors.New("email template not found")

// Rendered is a template executed with its variables, still in markdown.
type Rendered struct {
	Subject  string
	Markdown string
}

type parsed struct {
	subject *template.Template
	body    *template.Template
}

// Loader parses templates once and caches them by name.
type Loader struct {
	path   string
	logger logger.Interface

	mu    sync.RWMutex
	cache map[string]*parsed
}

// NewLoader creates a loader. An empty path uses the built-in templates only.
func NewLoader(path string, logger logger.Interface) *Loader {
	return &Loader{
		path:   path,
		logger: logger,
		cache:  make(map[string]*parsed),
	}
}

// Render executes template name with vars.
func (l *Loader) Render(name string, vars map[string]any) (*Rendered, error) {
	p, err := l.get(name)
	if err != nil {
		return nil, err
	}

	var subject, body bytes.Buffer
	if err := p.subject.Execute(&subject, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s subject: %w", name, err)
	}
	if err := p.body.Execute(&body, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s body: %w", name, err)
	}
	return &Rendered{
		Subject:  strings.TrimSpace(subject.String()),
		Markdown: strings.TrimSpace(body.String()),
	}, nil
}

func (l *Loader) get(name string) (*parsed, error) {
	l.mu.RLock()
	p, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return p, nil
	}

	content, err := l.read(name)
	if err != nil {
		return nil, err
	}
	p, err = parse(name, content)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = p
	l.mu.Unlock()
	return p, nil
}

// read prefers an override file and falls back to the embedded default.
func (l *Loader) read(name string) (string, error) {
	if strings.ContainsAny(name, `/\.`) {
		return "", fmt.Errorf("%w: invalid name %q", ErrTemplateNotFound, name)
	}

	if l.path != "" {
		file := filepath.Join(l.path, name+".md")
		content, err := os.ReadFile(file)
		if err == nil {
			l.logger.Infow("loaded email template override", "template", name, "file", file)
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			l.logger.Warnw("failed to read email template override, using default",
				"file", file,
				"error", err,
			)
		}
	}

	content, err := defaults.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return string(content), nil
}

// parse splits "subject: ..." from the markdown body that follows it.
func parse(name, content string) (*parsed, error) {
	head, body, found := strings.Cut(content, "\n")
	subject, ok := strings.CutPrefix(strings.TrimSpace(head), "subject:")
	if !found || !ok {
		return nil, fmt.Errorf("email template %s must start with a subject line", name)
	}

	st, err := template.New(name + ".subject").Option("missingkey=zero").Parse(strings.TrimSpace(subject))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s subject: %w", name, err)
	}
	bt, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s body: %w", name, err)
	}
	return &parsed{subject: st, body: bt}, nil
}
