package models

import (
	"strings"
	"time"

	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
)

// Circle is a named, ordered disclosure group of one person's attributes.
type Circle struct {
	ID         id.CircleID
	Owner      id.PersonID
	Name       string
	Attributes []id.AttributeID
	Order      int
	Default    bool
	// Public circles may be disclosed to anyone holding a quick-connect
	// token; new circles start private.
	Public    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a private circle with the given members.
func New(owner id.PersonID, name string, attributes []id.AttributeID, order int) (*Circle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "circle name must not be empty")
	}
	return &Circle{
		ID:         id.NewCircleID(),
		Owner:      owner,
		Name:       name,
		Attributes: attributes,
		Order:      order,
	}, nil
}

// Contains reports membership.
func (c *Circle) Contains(attributeID id.AttributeID) bool {
	for _, member := range c.Attributes {
		if member == attributeID {
			return true
		}
	}
	return false
}

// Add appends the attribute if absent; adding twice is a no-op.
func (c *Circle) Add(attributeID id.AttributeID) {
	if !c.Contains(attributeID) {
		c.Attributes = append(c.Attributes, attributeID)
	}
}

// Remove drops the attribute. Removing the last member is refused: an empty
// circle would disclose nothing while still looking shareable.
func (c *Circle) Remove(attributeID id.AttributeID) error {
	if !c.Contains(attributeID) {
		return nil
	}
	if len(c.Attributes) == 1 {
		return dErrors.New(dErrors.CodeStateConflict, "cannot remove the last attribute from a circle")
	}
	kept := c.Attributes[:0]
	for _, member := range c.Attributes {
		if member != attributeID {
			kept = append(kept, member)
		}
	}
	c.Attributes = kept
	return nil
}
