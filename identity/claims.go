/*
Package identity is the boundary to the external identity provider.

PURPOSE:
  Access tokens are verified here and turned into a strict Claims record.
  Nothing past this package sees raw token content. Provisioner then maps
  Claims onto a local organization and user.

TOKEN SHAPE:
  sub                 → Claims.Subject (becomes the user id)
  email, given_name,
  family_name         → profile fields
  groups              → group paths, e.g. ["/Acme", "/Acme/Engineering"]
  realm_access.roles  → role names, e.g. ["employee", "manager"]

GROUP PATHS:
  A path with exactly one segment ("/Acme") names the organization.
  A two-segment path under it ("/Acme/Engineering") names the department.

SEE ALSO:
  - provisioner.go: Sync
  - api/middleware.go: Bearer token extraction
*/
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/recognition-engine/points"
)

// Claims is the verified identity of a caller.
type Claims struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Groups     []string
	RealmRoles []string
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

type tokenClaims struct {
	Email       string      `json:"email,omitempty"`
	GivenName   string      `json:"given_name,omitempty"`
	FamilyName  string      `json:"family_name,omitempty"`
	Groups      []string    `json:"groups,omitempty"`
	RealmAccess realmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// =============================================================================
// VERIFIER
// =============================================================================

// Verifier checks HMAC-signed access tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a verifier for tokens signed with secret. A non-empty
// issuer must match the token's iss claim.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Verify parses token and returns its claims. Every failure unwraps to
// points.ErrUnauthorized.
func (v *Verifier) Verify(token string) (Claims, error) {
	if len(v.secret) == 0 {
		return Claims{}, fmt.Errorf("%w: token verification is not configured", points.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", points.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: invalid token", points.ErrUnauthorized)
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", points.ErrUnauthorized)
	}

	return Claims{
		Subject:    tc.Subject,
		Email:      tc.Email,
		GivenName:  tc.GivenName,
		FamilyName: tc.FamilyName,
		Groups:     tc.Groups,
		RealmRoles: tc.RealmAccess.Roles,
	}, nil
}

// Sign mints a token for c that Verify accepts. Used by the admin CLI and
// tests; production tokens come from the identity provider.
func (v *Verifier) Sign(c Claims, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	tc := tokenClaims{
		Email:       c.Email,
		GivenName:   c.GivenName,
		FamilyName:  c.FamilyName,
		Groups:      c.Groups,
		RealmAccess: realmAccess{Roles: c.RealmRoles},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.secret)
}

// =============================================================================
// DERIVATION
// =============================================================================

// OrganizationFromGroups returns the first single-segment group path, without
// its leading slash. ok is false when the caller belongs to no organization.
func OrganizationFromGroups(groups []string) (name string, ok bool) {
	for _, g := range groups {
		if segs := strings.Split(g, "/"); len(segs) == 2 && segs[0] == "" && segs[1] != "" {
			return segs[1], true
		}
	}
	return "", false
}

// DepartmentFromGroups returns the first department group under org.
func DepartmentFromGroups(groups []string, org string) string {
	prefix := "/" + org + "/"
	for _, g := range groups {
		if rest, found := strings.CutPrefix(g, prefix); found && rest != "" && !strings.Contains(rest, "/") {
			return rest
		}
	}
	return ""
}

// RoleFromRealmRoles picks the highest-precedence role named in roles.
// Unknown names are ignored; no match yields RoleUser.
func RoleFromRealmRoles(roles []string) points.Role {
	best := points.RoleUser
	for _, name := range roles {
		r, err := points.ParseRole(name)
		if err != nil {
			continue
		}
		if r.AtLeast(best) {
			best = r
		}
	}
	return best
}
