// Package plans holds the plan-entitlement model: the versioned tier table
// and the pure functions that decide staff limits and course access.
//
// Nothing here performs I/O after the table is loaded. An unrecognised tier
// is treated as free.
package plans

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"safetrain-backend/pkg/models"
)

// upgradeThresholdPct is the share of the staff limit at which an upgrade is suggested.
const upgradeThresholdPct = 80

//go:embed plans.toml
var defaultTableTOML string

// Plan describes one subscription tier.
type Plan struct {
	ID          models.Tier `json:"id"`
	Name        string      `json:"name"`
	Price       string      `json:"price"`
	PriceAmount int         `json:"priceAmount"`
	StaffLimit  Limit       `json:"staffLimit"`
	Courses     Catalog     `json:"courseIds"`
	Features    []string    `json:"features"`
}

// IsPaid reports whether the plan costs money.
func (p *Plan) IsPaid() bool {
	return p.ID != models.TierFree
}

// Table is an immutable, versioned set of plans ordered from cheapest to most expensive.
type Table struct {
	Version string
	order   []models.Tier
	plans   map[models.Tier]*Plan
}

type tableFile struct {
	Version string      `toml:"version"`
	Plans   []planEntry `toml:"plan"`
}

type planEntry struct {
	ID             string   `toml:"id"`
	Name           string   `toml:"name"`
	Price          string   `toml:"price"`
	PriceAmount    int      `toml:"price_amount"`
	StaffLimit     int      `toml:"staff_limit"`
	UnlimitedStaff bool     `toml:"unlimited_staff"`
	Courses        string   `toml:"courses"`
	CourseIDs      []int    `toml:"course_ids"`
	Features       []string `toml:"features"`
}

// Load parses a plan table. Every known tier must appear exactly once, in upgrade order.
func Load(r io.Reader) (*Table, error) {
	var f tableFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decode plan table: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in plan table: %v", undecoded)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("plan table has no version")
	}
	if len(f.Plans) != len(models.TierOrder) {
		return nil, fmt.Errorf("plan table defines %d plans, want %d", len(f.Plans), len(models.TierOrder))
	}

	t := &Table{
		Version: f.Version,
		plans:   make(map[models.Tier]*Plan, len(f.Plans)),
	}
	for i, e := range f.Plans {
		tier := models.Tier(e.ID)
		if tier != models.TierOrder[i] {
			return nil, fmt.Errorf("plan %d is %q, want %q", i, e.ID, models.TierOrder[i])
		}
		p, err := e.plan()
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", e.ID, err)
		}
		t.order = append(t.order, tier)
		t.plans[tier] = p
	}
	return t, nil
}

func (e planEntry) plan() (*Plan, error) {
	p := &Plan{
		ID:          models.Tier(e.ID),
		Name:        e.Name,
		Price:       e.Price,
		PriceAmount: e.PriceAmount,
		Features:    e.Features,
	}

	switch {
	case e.UnlimitedStaff && e.StaffLimit != 0:
		return nil, fmt.Errorf("staff_limit and unlimited_staff are mutually exclusive")
	case e.UnlimitedStaff:
		p.StaffLimit = Unlimited()
	case e.StaffLimit < 0:
		return nil, fmt.Errorf("negative staff_limit %d", e.StaffLimit)
	default:
		p.StaffLimit = Finite(e.StaffLimit)
	}

	switch {
	case e.Courses == "all" && len(e.CourseIDs) > 0:
		return nil, fmt.Errorf("courses = \"all\" and course_ids are mutually exclusive")
	case e.Courses == "all":
		p.Courses = AllCourses()
	case e.Courses != "":
		return nil, fmt.Errorf("courses must be \"all\", got %q", e.Courses)
	default:
		p.Courses = CourseSet(e.CourseIDs...)
	}
	return p, nil
}

// MustLoad is Load for embedded tables; it panics on error.
func MustLoad(src string) *Table {
	t, err := Load(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return t
}

// Plan returns the plan for tier, falling back to free for unknown tiers.
func (t *Table) Plan(tier models.Tier) *Plan {
	if p, ok := t.plans[tier]; ok {
		return p
	}
	return t.plans[models.TierFree]
}

// Plans returns every plan in upgrade order.
func (t *Table) Plans() []*Plan {
	out := make([]*Plan, 0, len(t.order))
	for _, tier := range t.order {
		out = append(out, t.plans[tier])
	}
	return out
}

func (t *Table) StaffLimit(tier models.Tier) Limit {
	return t.Plan(tier).StaffLimit
}

func (t *Table) CourseCatalogFor(tier models.Tier) Catalog {
	return t.Plan(tier).Courses
}

// CanAddStaff reports whether one more active member fits under the tier's limit.
func (t *Table) CanAddStaff(tier models.Tier, activeCount int) bool {
	return t.StaffLimit(tier).Allows(activeCount)
}

func (t *Table) IsCourseAvailable(tier models.Tier, courseID int) bool {
	return t.CourseCatalogFor(tier).Contains(courseID)
}

func (t *Table) RemainingSlots(tier models.Tier, activeCount int) Limit {
	return t.StaffLimit(tier).Minus(activeCount)
}

// SuggestUpgrade returns the next tier once usage reaches 80% of the staff
// limit. ok is false below the threshold, on the top tier and for unlimited plans.
func (t *Table) SuggestUpgrade(tier models.Tier, count int) (next models.Tier, ok bool) {
	p := t.Plan(tier)
	limit, finite := p.StaffLimit.Value()
	if !finite || count*100 < limit*upgradeThresholdPct {
		return "", false
	}
	for i, known := range t.order {
		if known == p.ID && i+1 < len(t.order) {
			return t.order[i+1], true
		}
	}
	return "", false
}

// FormatStaffLimit renders the limit the way the pricing page shows it.
func (t *Table) FormatStaffLimit(tier models.Tier) string {
	limit := t.StaffLimit(tier)
	if limit.IsUnlimited() {
		return "Unlimited"
	}
	return "Up to " + limit.String()
}

// Default is the plan table compiled into the binary.
var Default = MustLoad(defaultTableTOML)

func Get(tier models.Tier) *Plan { return Default.Plan(tier) }

func All() []*Plan { return Default.Plans() }

func StaffLimit(tier models.Tier) Limit { return Default.StaffLimit(tier) }

func CourseCatalogFor(tier models.Tier) Catalog { return Default.CourseCatalogFor(tier) }

func CanAddStaff(tier models.Tier, activeCount int) bool {
	return Default.CanAddStaff(tier, activeCount)
}

func IsCourseAvailable(tier models.Tier, courseID int) bool {
	return Default.IsCourseAvailable(tier, courseID)
}

func RemainingSlots(tier models.Tier, activeCount int) Limit {
	return Default.RemainingSlots(tier, activeCount)
}

func SuggestUpgrade(tier models.Tier, count int) (models.Tier, bool) {
	return Default.SuggestUpgrade(tier, count)
}
