package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/voice-todo/internal/validation"
)

func init() {
	validation.RegisterEnum("intent_action", string(ActionCreate), string(ActionNavigate), string(ActionNone))
	validation.RegisterEnum("item_type", string(ItemTask), string(ItemList), string(ItemReminder))
	routes := make([]string, 0, len(Routes()))
	for _, r := range Routes() {
		routes = append(routes, string(r))
	}
	validation.RegisterEnum("route", routes...)
}

// ValidationError describes why a decoded model result is not a usable intent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid intent: " + e.Reason
	}
	return fmt.Sprintf("invalid intent field %q: %s", e.Field, e.Reason)
}

type envelope struct {
	Action string `validate:"required,intent_action"`
}

type createFields struct {
	Title    string   `validate:"notblank"`
	Type     string   `validate:"required,item_type"`
	Sections []string `validate:"dive,notblank"`
}

type navigateFields struct {
	Page string `validate:"required,route"`
}

// Validate converts a decoded model result into an Intent. It never panics and
// always returns a non-nil Intent: on failure that intent is None and the error
// is a *ValidationError.
func Validate(raw any, now time.Time) (Intent, error) {
	in, err := validate(raw, now)
	if err != nil {
		return None{Reason: err.Error()}, err
	}
	return in, nil
}

func validate(raw any, now time.Time) (Intent, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("result must be an object, got %T", raw)}
	}

	action, err := stringField(obj, "action")
	if err != nil {
		return nil, err
	}
	env := envelope{Action: strings.ToLower(strings.TrimSpace(action))}
	if err := validation.Validate.Struct(env); err != nil {
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}

	switch Action(env.Action) {
	case ActionCreate:
		return validateCreate(obj, now)
	case ActionNavigate:
		return validateNavigate(obj)
	default:
		reason, _ := obj["reason"].(string)
		if reason == "" {
			reason = "no matching command"
		}
		return None{Reason: reason}, nil
	}
}

func validateCreate(obj map[string]any, now time.Time) (Intent, error) {
	title, err := stringField(obj, "title")
	if err != nil {
		return nil, err
	}
	itemType, err := stringField(obj, "type")
	if err != nil {
		return nil, err
	}
	sections, err := stringsField(obj, "sections")
	if err != nil {
		return nil, err
	}

	fields := createFields{
		Title:    strings.TrimSpace(title),
		Type:     strings.ToLower(strings.TrimSpace(itemType)),
		Sections: sections,
	}
	if err := validation.Validate.Struct(fields); err != nil {
		return nil, &ValidationError{Reason: validation.Describe(err)}
	}

	out := Create{Type: ItemType(fields.Type), Title: fields.Title}

	// An unusable time is dropped rather than failing the whole command.
	var at *time.Time
	if literal, ok := obj["time"].(string); ok {
		if t, ok := ParseInstant(literal, now); ok {
			at = &t
		}
	}

	switch out.Type {
	case ItemTask:
		out.DueAt = at
	case ItemReminder:
		out.FireAt = at
	case ItemList:
		out.Sections = make([]string, 0, len(fields.Sections))
		for _, s := range fields.Sections {
			out.Sections = append(out.Sections, strings.TrimSpace(s))
		}
	}
	return out, nil
}

func validateNavigate(obj map[string]any) (Intent, error) {
	page, err := stringField(obj, "page")
	if err != nil {
		return nil, err
	}
	fields := navigateFields{Page: strings.TrimSpace(page)}
	if err := validation.Validate.Struct(fields); err != nil {
		return nil, &ValidationError{Field: "page", Reason: fmt.Sprintf("unknown route %q", page)}
	}
	return Navigate{Route: Route(fields.Page)}, nil
}

// stringField returns obj[key] as a string. A missing or null key yields "".
func stringField(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: key, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	return s, nil
}

// stringsField returns obj[key] as a string slice. A missing or null key yields an empty slice.
func stringsField(obj map[string]any, key string) ([]string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return []string{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &ValidationError{Field: key, Reason: fmt.Sprintf("must be a list, got %T", v)}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &ValidationError{Field: key, Reason: fmt.Sprintf("item %d must be a string, got %T", i, item)}
		}
		out = append(out, s)
	}
	return out, nil
}
