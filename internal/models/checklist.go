package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSectionIndex is returned when a section index does not exist in the stored list.
var ErrSectionIndex = errors.New("section index out of range")

// Section is one checkable line of a checklist, addressed by position.
type Section struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Checklist is a titled list of sections.
type Checklist struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Sections  []Section `json:"sections"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSections builds incomplete sections from plain item texts.
func NewSections(items []string) []Section {
	sections := make([]Section, 0, len(items))
	for _, text := range items {
		sections = append(sections, Section{Text: text})
	}
	return sections
}

func (c *Checklist) checkIndex(index int) error {
	if index < 0 || index >= len(c.Sections) {
		return fmt.Errorf("%w: %d (list has %d sections)", ErrSectionIndex, index, len(c.Sections))
	}
	return nil
}

// ToggleSection flips the completion flag of the section at index.
func (c *Checklist) ToggleSection(index int, now time.Time) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.Sections[index].Completed = !c.Sections[index].Completed
	c.UpdatedAt = now
	return nil
}

// RemoveSection deletes the section at index, shifting later sections down.
func (c *Checklist) RemoveSection(index int, now time.Time) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.Sections = append(c.Sections[:index:index], c.Sections[index+1:]...)
	c.UpdatedAt = now
	return nil
}

// AddSection appends a new incomplete section.
func (c *Checklist) AddSection(text string, now time.Time) {
	c.Sections = append(c.Sections, Section{Text: text})
	c.UpdatedAt = now
}

// CompletedCount returns how many sections are checked.
func (c *Checklist) CompletedCount() int {
	n := 0
	for _, s := range c.Sections {
		if s.Completed {
			n++
		}
	}
	return n
}
