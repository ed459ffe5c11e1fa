// Package intent defines the structured commands a spoken utterance can map to
// and validates untrusted model output into them.
package intent

import (
	"strings"
	"time"
)

// Action is the discriminator of an Intent.
type Action string

const (
	ActionCreate   Action = "create"
	ActionNavigate Action = "navigate"
	ActionNone     Action = "none"
)

// ItemType is the kind of record a Create intent produces.
type ItemType string

const (
	ItemTask     ItemType = "task"
	ItemList     ItemType = "list"
	ItemReminder ItemType = "reminder"
)

// Route is an application page a Navigate intent can open.
type Route string

const (
	RouteLists     Route = "/"
	RouteTasks     Route = "/tareas"
	RouteHistory   Route = "/historial"
	RouteReminders Route = "/recordatorios"
)

// Routes returns every navigable route.
func Routes() []Route {
	return []Route{RouteLists, RouteTasks, RouteHistory, RouteReminders}
}

// IsValid reports whether r is one of the navigable routes.
func (r Route) IsValid() bool {
	switch r {
	case RouteLists, RouteTasks, RouteHistory, RouteReminders:
		return true
	}
	return false
}

// Name is the spoken page name: the path without its slash, or "listas" for the root.
func (r Route) Name() string {
	if r == RouteLists {
		return "listas"
	}
	return strings.TrimPrefix(string(r), "/")
}

// Intent is a validated command. The set of implementations is closed:
// Create, Navigate and None.
type Intent interface {
	Action() Action
	sealed()
}

// Create asks for a new task, list or reminder.
type Create struct {
	Type  ItemType
	Title string
	// DueAt is the optional due date of a task.
	DueAt *time.Time
	// Sections are the item texts of a list.
	Sections []string
	// FireAt is the optional firing time of a reminder.
	FireAt *time.Time
}

// Navigate asks to open a page.
type Navigate struct {
	Route Route
}

// None means the command was not understood.
type None struct {
	Reason string
}

func (Create) Action() Action   { return ActionCreate }
func (Navigate) Action() Action { return ActionNavigate }
func (None) Action() Action     { return ActionNone }

func (Create) sealed()   {}
func (Navigate) sealed() {}
func (None) sealed()     {}
