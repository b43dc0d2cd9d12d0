package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// OrganizationContext is the per-batch view of an entity: its users,
// departments and groups as loaded at the start of the run, plus the
// departments created by earlier rows of the same run.
//
// It is owned by a single Engine.Run and is not safe for concurrent use.
type OrganizationContext struct {
	entity      Entity
	users       []User
	departments []*Department
	groups      []Group
	created     []*Department
}

// NewOrganizationContext builds a context from snap.
func NewOrganizationContext(snap *EntitySnapshot) *OrganizationContext {
	c := &OrganizationContext{
		entity: snap.Entity,
		users:  snap.Users,
		groups: snap.Groups,
	}
	c.departments = make([]*Department, len(snap.Departments))
	for i := range snap.Departments {
		d := snap.Departments[i]
		c.departments[i] = &d
	}
	return c
}

// Entity returns the entity the context was loaded for.
func (c *OrganizationContext) Entity() Entity {
	return c.entity
}

// FindDepartmentByName returns the existing or batch-created department with
// the given name, or nil.
func (c *OrganizationContext) FindDepartmentByName(name string) *Department {
	key := nameKey(name)
	if key == "" {
		return nil
	}
	for _, d := range c.departments {
		if nameKey(d.Name) == key {
			return d
		}
	}
	for _, d := range c.created {
		if nameKey(d.Name) == key {
			return d
		}
	}
	return nil
}

// FindGroupByName returns the booking group with the given name, or nil.
func (c *OrganizationContext) FindGroupByName(name string) *Group {
	key := nameKey(name)
	if key == "" {
		return nil
	}
	for i := range c.groups {
		if nameKey(c.groups[i].Name) == key {
			return &c.groups[i]
		}
	}
	return nil
}

// FindUserByFullName returns the existing user whose last, first and middle
// name match fullName, or nil.
func (c *OrganizationContext) FindUserByFullName(fullName string) *User {
	key := nameKey(fullName)
	if key == "" {
		return nil
	}
	for i := range c.users {
		if nameKey(c.users[i].FullName()) == key {
			return &c.users[i]
		}
	}
	return nil
}

// RegisterCreatedDepartment makes d visible to lookups by later rows.
func (c *OrganizationContext) RegisterCreatedDepartment(d *Department) {
	c.created = append(c.created, d)
}

// CreatedDepartments returns the departments registered during the run.
func (c *OrganizationContext) CreatedDepartments() []*Department {
	return c.created
}

// nameKey folds case and drops all whitespace so " Sales" and "sa les" compare
// equal.
func nameKey(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return cases.Fold().String(stripped)
}
