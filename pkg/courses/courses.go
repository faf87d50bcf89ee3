// Package courses is the static course catalog. It is reference data:
// organizations never own or modify courses, they only assign them.
package courses

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed courses.yaml
var catalogYAML []byte

// Course 课程
type Course struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is an ordered, read-only list of courses.
type Catalog struct {
	courses []Course
	byID    map[int]int
}

// Parse decodes a YAML course list. Ids must be positive and unique.
func Parse(data []byte) (*Catalog, error) {
	var list []Course
	if err := yaml.UnmarshalStrict(data, &list); err != nil {
		return nil, fmt.Errorf("decode course catalog: %w", err)
	}
	c := &Catalog{courses: list, byID: make(map[int]int, len(list))}
	for i, course := range list {
		if course.ID <= 0 {
			return nil, fmt.Errorf("course %q has invalid id %d", course.Title, course.ID)
		}
		if _, dup := c.byID[course.ID]; dup {
			return nil, fmt.Errorf("duplicate course id %d", course.ID)
		}
		c.byID[course.ID] = i
	}
	return c, nil
}

// Get looks up a course by id.
func (c *Catalog) Get(id int) (Course, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Course{}, false
	}
	return c.courses[i], true
}

// ByIDs returns the courses whose ids appear in ids, in catalog order.
func (c *Catalog) ByIDs(ids []int) []Course {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Course
	for _, course := range c.courses {
		if want[course.ID] {
			out = append(out, course)
		}
	}
	return out
}

// All returns a copy of the catalog.
func (c *Catalog) All() []Course {
	return append([]Course(nil), c.courses...)
}

// IDs returns every course id in catalog order.
func (c *Catalog) IDs() []int {
	out := make([]int, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course.ID)
	}
	return out
}

// Default is the catalog compiled into the binary.
var Default = mustParse(catalogYAML)

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}
