package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row, or the row
	// exists but is not owned by the given organization.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert or update violates a uniqueness constraint.
	ErrDuplicate = errors.New("unique constraint violation")
)

// SeatGuard is consulted with the current number of active members of the
// organization immediately before a member becomes active. A non-nil error
// aborts the write and is returned unchanged.
type SeatGuard func(activeCount int) error

// Store 定义数据库访问接口
//
// Every method is a synchronous round-trip; none retries. Lookups that take
// an orgID are ownership-scoped: a row belonging to another organization is
// reported as ErrNotFound.
type Store interface {
	// Organizations
	GetOrganizationByIdentity(ctx context.Context, identityID string) (*models.Organization, error)
	// CreateOrganization inserts org, assigning ID and CreatedAt when empty.
	// A second organization for the same identity fails with ErrDuplicate.
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// Team members
	CountTeamMembers(ctx context.Context, orgID string, status models.MemberStatus) (int, error)
	// ListTeamMembers returns members newest first, each with its assignments.
	ListTeamMembers(ctx context.Context, orgID string) ([]models.TeamMember, error)
	GetTeamMember(ctx context.Context, orgID, memberID string) (*models.TeamMember, error)
	FindTeamMemberByEmail(ctx context.Context, orgID, email string) (*models.TeamMember, error)
	// CreateTeamMember counts active members, consults guard and inserts m.
	// SQL and memory stores do this atomically per organization.
	CreateTeamMember(ctx context.Context, m *models.TeamMember, guard SeatGuard) error
	// UpdateTeamMember applies patch. guard is consulted only when the patch
	// moves a non-active member to active.
	UpdateTeamMember(ctx context.Context, orgID, memberID string, patch models.TeamMemberPatch, guard SeatGuard) (*models.TeamMember, error)
	// DeleteTeamMember removes the member and all of its course assignments as
	// one unit and reports how many assignments went with it.
	DeleteTeamMember(ctx context.Context, orgID, memberID string) (int, error)

	// Course assignments
	GetCourseAssignment(ctx context.Context, orgID, assignmentID string) (*models.CourseAssignment, error)
	FindCourseAssignment(ctx context.Context, memberID string, courseID int) (*models.CourseAssignment, error)
	ListCourseAssignments(ctx context.Context, memberID string) ([]models.CourseAssignment, error)
	// CreateCourseAssignment fails with ErrDuplicate when the (member, course)
	// pair already exists.
	CreateCourseAssignment(ctx context.Context, a *models.CourseAssignment) error
	DeleteCourseAssignment(ctx context.Context, assignmentID string) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// Driver names accepted by DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	SupabaseURL string
	SupabaseKey string
	Debug       bool
}

// ResolveDriver picks the driver when none is configured explicitly.
// Serverless: Supabase > PostgreSQL (avoids IPv6 trouble). Elsewhere:
// PostgreSQL > Supabase > SQLite.
func (c DatabaseConfig) ResolveDriver() string {
	if d := strings.ToLower(strings.TrimSpace(c.Driver)); d != "" {
		return d
	}
	hasSupabase := c.SupabaseURL != "" && c.SupabaseKey != ""
	if IsVercelEnvironment() && hasSupabase {
		return DriverSupabase
	}
	switch {
	case c.PostgresDSN != "":
		return DriverPostgres
	case hasSupabase:
		return DriverSupabase
	case c.SQLitePath != "":
		return DriverSQLite
	}
	return ""
}

// Open 根据配置选择数据库实现
func Open(cfg DatabaseConfig, log *zap.Logger) (Store, error) {
	driver := cfg.ResolveDriver()
	log.Info("Opening store", zap.String("driver", driver))

	switch driver {
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver selected but POSTGRES_DSN is empty")
		}
		return NewPostgresStore(cfg.PostgresDSN, log)
	case DriverSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return nil, fmt.Errorf("supabase driver selected but SUPABASE_URL/SUPABASE_SERVICE_KEY are empty")
		}
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, log), nil
	case DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path, log)
	case DriverMemory:
		return NewMemoryStore(), nil
	case "":
		return nil, fmt.Errorf("no database configured: set POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY or SQLITE_PATH")
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

// IsVercelEnvironment 检查是否运行在 Vercel / Lambda 上
func IsVercelEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" ||
		os.Getenv("VERCEL_URL") != "" ||
		os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
