package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/coi-compliance-server/internal/domain"
)

// TemplateDirectory serves requirement templates from *.yaml files in a directory.
// Each file holds one template. A file that fails validation is skipped and logged;
// the remaining templates stay available.
type TemplateDirectory struct {
	dir    string
	logger *logrus.Logger

	mu        sync.RWMutex
	templates map[string]*domain.RequirementTemplate
	onReload  func([]*domain.RequirementTemplate)
}

// NewTemplateDirectory loads every template in dir.
func NewTemplateDirectory(dir string, logger *logrus.Logger) (*TemplateDirectory, error) {
	d := &TemplateDirectory{
		dir:       dir,
		logger:    logger,
		templates: make(map[string]*domain.RequirementTemplate),
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the directory and atomically swaps the template set.
func (d *TemplateDirectory) Reload() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory %s: %w", d.dir, err)
	}

	templates := make(map[string]*domain.RequirementTemplate)
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		template, err := LoadTemplateFile(path)
		if err != nil {
			d.logger.WithError(err).WithField("file", path).Warn("Skipping invalid requirement template")
			continue
		}
		if _, dup := templates[template.ID]; dup {
			d.logger.WithFields(logrus.Fields{"file": path, "template_id": template.ID}).Warn("Duplicate template ID, keeping first")
			continue
		}
		templates[template.ID] = template
	}

	d.mu.Lock()
	d.templates = templates
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"directory": d.dir,
		"templates": len(templates),
	}).Info("Requirement templates loaded")
	return nil
}

// LoadTemplateFile parses and validates a single YAML template.
func LoadTemplateFile(path string) (*domain.RequirementTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	template := &domain.RequirementTemplate{}
	if err := yaml.Unmarshal(data, template); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", filepath.Base(path), err)
	}
	if template.ID == "" {
		template.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate returns a template by ID.
func (d *TemplateDirectory) GetTemplate(ctx context.Context, id string) (*domain.RequirementTemplate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	template, ok := d.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return template, nil
}

// ListTemplates returns all templates ordered by ID.
func (d *TemplateDirectory) ListTemplates(ctx context.Context) ([]*domain.RequirementTemplate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	templates := make([]*domain.RequirementTemplate, 0, len(d.templates))
	for _, template := range d.templates {
		templates = append(templates, template)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// OnReload registers a callback run with the new template set after every reload
// triggered by Watch.
func (d *TemplateDirectory) OnReload(fn func([]*domain.RequirementTemplate)) {
	d.mu.Lock()
	d.onReload = fn
	d.mu.Unlock()
}

// Watch reloads the directory whenever a template file changes, until ctx is done.
func (d *TemplateDirectory) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", d.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isTemplateFile(evt.Name) {
					continue
				}
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := d.Reload(); err != nil {
					d.logger.WithError(err).Error("Failed to reload requirement templates")
					continue
				}
				d.notifyReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.WithError(err).Warn("Template watcher error")
			}
		}
	}()
	return nil
}

func (d *TemplateDirectory) notifyReload() {
	d.mu.RLock()
	fn := d.onReload
	d.mu.RUnlock()
	if fn == nil {
		return
	}
	templates, _ := d.ListTemplates(context.Background())
	fn(templates)
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
