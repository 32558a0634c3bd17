// Package registry maps entity types to the stores that own them.
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/models"
)

// ErrEntityNotFound is returned by a Lookup when no entity has the id.
var ErrEntityNotFound = stderrors.New("entity not found")

// Lookup finds one entity by id.
type Lookup interface {
	FindByID(ctx context.Context, id string) (*models.Entity, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, id string) (*models.Entity, error)

func (f LookupFunc) FindByID(ctx context.Context, id string) (*models.Entity, error) {
	return f(ctx, id)
}

// Templates hold the default display text for an entity type. "{{title}}"
// is replaced with the entity's title.
type Templates struct {
	Title   string
	Message string
}

type Entry struct {
	Lookup    Lookup
	Templates Templates
}

var defaultTemplates = map[models.EntityType]Templates{
	models.EntityTask:       {Title: "Task Reminder: {{title}}", Message: "Don't forget to complete: {{title}}"},
	models.EntityHabit:      {Title: "Habit Reminder: {{title}}", Message: "Time to work on your habit: {{title}}"},
	models.EntityReflection: {Title: "Reflection Reminder: {{title}}", Message: "Take a moment to reflect: {{title}}"},
	models.EntityMemory:     {Title: "Memory Reminder: {{title}}", Message: "Revisit your memory: {{title}}"},
	models.EntityPrompt:     {Title: "Prompt Reminder: {{title}}", Message: "A new prompt is waiting for you: {{title}}"},
}

// DefaultTemplates returns the built-in templates for t, falling back to a
// generic pair for types without their own.
func DefaultTemplates(t models.EntityType) Templates {
	if tmpl, ok := defaultTemplates[t]; ok {
		return tmpl
	}
	return Templates{Title: "Reminder: {{title}}", Message: "You have a reminder for: {{title}}"}
}

// Registry is populated at startup and read-only afterwards.
type Registry struct {
	entries map[models.EntityType]Entry
}

func New() *Registry {
	return &Registry{entries: make(map[models.EntityType]Entry)}
}

// Register adds or replaces the entry for t. Empty templates fall back to
// DefaultTemplates.
func (r *Registry) Register(t models.EntityType, entry Entry) error {
	if strings.TrimSpace(string(t)) == "" {
		return fmt.Errorf("entity type is required")
	}
	if entry.Lookup == nil {
		return fmt.Errorf("entity type %q: lookup is required", t)
	}

	defaults := DefaultTemplates(t)
	if entry.Templates.Title == "" {
		entry.Templates.Title = defaults.Title
	}
	if entry.Templates.Message == "" {
		entry.Templates.Message = defaults.Message
	}

	r.entries[t] = entry
	return nil
}

func (r *Registry) Has(t models.EntityType) bool {
	_, ok := r.entries[t]
	return ok
}

// Types returns the registered entity types in sorted order.
func (r *Registry) Types() []models.EntityType {
	types := make([]models.EntityType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Resolve looks up a live entity. Unknown types are a ValidationError and
// absent entities a NotFoundError; any other lookup failure is returned as a
// query error.
func (r *Registry) Resolve(ctx context.Context, t models.EntityType, id string) (*models.Entity, error) {
	entry, ok := r.entries[t]
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown entity type %q", t))
	}

	entity, err := entry.Lookup.FindByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, ErrEntityNotFound) {
			return nil, errors.NewNotFoundError(string(t), id)
		}
		if _, ok := errors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, errors.NewQueryExecutionFailedError("find "+string(t), err)
	}
	if entity == nil {
		return nil, errors.NewNotFoundError(string(t), id)
	}
	if entity.Type == "" {
		entity.Type = t
	}
	return entity, nil
}

// Render produces the notification title and message for entity. Non-empty
// metadata fields override the templates independently.
func (r *Registry) Render(t models.EntityType, entity *models.Entity, meta *models.ReminderMetadata) (string, string) {
	tmpl := DefaultTemplates(t)
	if entry, ok := r.entries[t]; ok {
		tmpl = entry.Templates
	}

	data := map[string]string{"title": ""}
	if entity != nil {
		data["title"] = entity.Title
	}

	title := renderTemplate(tmpl.Title, data)
	message := renderTemplate(tmpl.Message, data)

	if meta != nil {
		if meta.Title != "" {
			title = meta.Title
		}
		if meta.Message != "" {
			message = meta.Message
		}
	}
	return title, message
}

func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}
