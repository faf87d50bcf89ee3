// Package services holds the organization directory, the team roster and
// the course assignment manager. Every call takes the caller's organization
// explicitly; none of them keeps state between requests.
package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/courses"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/plans"
)

// OrgCache is the optional read-through cache used by Directory.
type OrgCache interface {
	Get(ctx context.Context, identityID string) (*models.Organization, bool)
	Set(ctx context.Context, org *models.Organization)
	Delete(ctx context.Context, identityID string)
}

// Deps are the collaborators shared by the services.
type Deps struct {
	Store   database.Store
	Plans   *plans.Table
	Courses *courses.Catalog
	Cache   OrgCache
	Metrics *Metrics
	Log     *zap.Logger
	Now     func() time.Time
}

// Services bundles the three managers built from one set of Deps.
type Services struct {
	Directory   *Directory
	Roster      *Roster
	Assignments *Assignments

	// Plans is the entitlement table the managers enforce.
	Plans *plans.Table
}

// New fills in defaults for missing Deps and builds the services.
func New(d Deps) *Services {
	if d.Plans == nil {
		d.Plans = plans.Default
	}
	if d.Courses == nil {
		d.Courses = courses.Default
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Services{
		Directory:   &Directory{deps: d, log: d.Log.With(zap.String("service", "directory"))},
		Roster:      &Roster{deps: d, log: d.Log.With(zap.String("service", "roster"))},
		Assignments: &Assignments{deps: d, log: d.Log.With(zap.String("service", "assignments"))},
		Plans:       d.Plans,
	}
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}

// storeError translates a store failure. ErrNotFound becomes NotFound(what)
// when what is set; anything else is a persistence failure with the cause
// attached.
func storeError(op string, err error, what string) error {
	if what != "" && errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(op, what)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Persistence(op, err)
}
