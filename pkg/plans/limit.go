package plans

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Limit is either a finite count or unlimited. The zero value is Finite(0).
type Limit struct {
	n         int
	unlimited bool
}

// Finite returns a limit of n. Negative values are clamped to zero.
func Finite(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unlimited returns the unbounded limit.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the finite value; ok is false for unlimited.
func (l Limit) Value() (n int, ok bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Allows reports whether count is strictly below the limit.
func (l Limit) Allows(count int) bool {
	return l.unlimited || count < l.n
}

// Minus returns max(0, l-count); unlimited stays unlimited.
func (l Limit) Minus(count int) Limit {
	if l.unlimited {
		return l
	}
	return Finite(l.n - count)
}

func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return strconv.Itoa(l.n)
}

// MarshalJSON encodes a finite limit as a number and unlimited as "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(l.n)), nil
}

// Catalog is the set of course ids a tier may assign, or every course.
type Catalog struct {
	all bool
	ids map[int]struct{}
}

// AllCourses returns the catalog that contains every course.
func AllCourses() Catalog {
	return Catalog{all: true}
}

// CourseSet returns a catalog limited to ids.
func CourseSet(ids ...int) Catalog {
	c := Catalog{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
	return c
}

func (c Catalog) IsAll() bool { return c.all }

func (c Catalog) Contains(courseID int) bool {
	if c.all {
		return true
	}
	_, ok := c.ids[courseID]
	return ok
}

// IDs returns the enumerated ids in ascending order; nil for the full catalog.
func (c Catalog) IDs() []int {
	if c.all {
		return nil
	}
	out := make([]int, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the full catalog as "all" and a subset as an id array.
func (c Catalog) MarshalJSON() ([]byte, error) {
	if c.all {
		return []byte(`"all"`), nil
	}
	return json.Marshal(c.IDs())
}
