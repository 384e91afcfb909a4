package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

// Directory is the slice of the store the provisioner writes to.
type Directory interface {
	GetOrganizationBySlug(ctx context.Context, slug string) (points.Organization, error)
	CreateOrganization(ctx context.Context, o points.Organization) error
	UpsertUser(ctx context.Context, u points.User) (points.User, error)
}

// Provisioner keeps local users and organizations in step with the identity
// provider.
type Provisioner struct {
	dir Directory
	log logrus.FieldLogger
	now func() time.Time
}

func NewProvisioner(dir Directory, log logrus.FieldLogger) *Provisioner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provisioner{
		dir: dir,
		log: log.WithField("component", "provisioner"),
		now: time.Now,
	}
}

// Sync resolves the caller's organization, creating it on first sight, and
// upserts the user's profile and role. Wallet pools are never touched; a new
// user starts at zero.
func (p *Provisioner) Sync(ctx context.Context, c Claims) (points.User, error) {
	orgName, ok := OrganizationFromGroups(c.Groups)
	if !ok {
		return points.User{}, fmt.Errorf("%w: user must belong to an organization", points.ErrUnauthorized)
	}

	org, err := p.EnsureOrganization(ctx, orgName)
	if err != nil {
		return points.User{}, err
	}

	return p.dir.UpsertUser(ctx, points.User{
		ID:             points.UserID(c.Subject),
		OrganizationID: org.ID,
		Email:          c.Email,
		FirstName:      c.GivenName,
		LastName:       c.FamilyName,
		Department:     DepartmentFromGroups(c.Groups, orgName),
		Role:           RoleFromRealmRoles(c.RealmRoles),
	})
}

// EnsureOrganization finds the organization whose slug matches name, or
// creates it.
func (p *Provisioner) EnsureOrganization(ctx context.Context, name string) (points.Organization, error) {
	s := slug.Make(name)
	if s == "" {
		return points.Organization{}, points.Invalid("organization", "name %q has no usable characters", name)
	}

	org, err := p.dir.GetOrganizationBySlug(ctx, s)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, points.ErrNotFound) {
		return points.Organization{}, err
	}

	org = points.Organization{
		ID:        points.OrgID(uuid.NewString()),
		Name:      name,
		Slug:      s,
		CreatedAt: p.now().UTC(),
	}
	if err := p.dir.CreateOrganization(ctx, org); err != nil {
		// Lost a race with a concurrent first login.
		if existing, getErr := p.dir.GetOrganizationBySlug(ctx, s); getErr == nil {
			return existing, nil
		}
		return points.Organization{}, err
	}

	p.log.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"slug":            org.Slug,
	}).Info("organization created")
	return org, nil
}
