package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/store/memory"
)

var secret = []byte("test-secret")

func aliceClaims() identity.Claims {
	return identity.Claims{
		Subject:    "kc-alice",
		Email:      "alice@acme.test",
		GivenName:  "Alice",
		FamilyName: "Smith",
		Groups:     []string{"/Acme Corp", "/Acme Corp/Engineering"},
		RealmRoles: []string{"offline_access", "employee", "manager"},
	}
}

// =============================================================================
// VERIFIER
// =============================================================================

func TestVerifier_RoundTrip(t *testing.T) {
	v := identity.NewVerifier(secret, "https://id.acme.test")

	token, err := v.Sign(aliceClaims(), time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, aliceClaims(), got)
}

func TestVerifier_RejectsBadTokens(t *testing.T) {
	v := identity.NewVerifier(secret, "https://id.acme.test")

	expired, err := v.Sign(aliceClaims(), -time.Minute)
	require.NoError(t, err)

	otherKey, err := identity.NewVerifier([]byte("other"), "https://id.acme.test").Sign(aliceClaims(), time.Hour)
	require.NoError(t, err)

	otherIssuer, err := identity.NewVerifier(secret, "https://evil.test").Sign(aliceClaims(), time.Hour)
	require.NoError(t, err)

	noSubject := aliceClaims()
	noSubject.Subject = ""
	anonymous, err := v.Sign(noSubject, time.Hour)
	require.NoError(t, err)

	// "none" algorithm must never be accepted.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "kc-alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   anonymous,
		"unsigned":     unsigned,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, points.ErrUnauthorized)
		})
	}
}

func TestVerifier_NoSecretRejectsEverything(t *testing.T) {
	token, err := identity.NewVerifier(secret, "").Sign(aliceClaims(), time.Hour)
	require.NoError(t, err)

	_, err = identity.NewVerifier(nil, "").Verify(token)
	assert.ErrorIs(t, err, points.ErrUnauthorized)
}

// =============================================================================
// DERIVATION
// =============================================================================

func TestOrganizationFromGroups(t *testing.T) {
	tests := []struct {
		groups []string
		want   string
		ok     bool
	}{
		{[]string{"/Acme"}, "Acme", true},
		{[]string{"/Acme/Engineering", "/Acme"}, "Acme", true},
		{[]string{"/Acme/Engineering"}, "", false},
		{[]string{"Acme"}, "", false},
		{[]string{"/"}, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := identity.OrganizationFromGroups(tt.groups)
		assert.Equal(t, tt.ok, ok, "groups %v", tt.groups)
		assert.Equal(t, tt.want, got, "groups %v", tt.groups)
	}
}

func TestDepartmentFromGroups(t *testing.T) {
	groups := []string{"/Acme", "/Other/Sales", "/Acme/Engineering/Platform", "/Acme/Engineering"}
	assert.Equal(t, "Engineering", identity.DepartmentFromGroups(groups, "Acme"))
	assert.Empty(t, identity.DepartmentFromGroups([]string{"/Acme"}, "Acme"))
}

func TestRoleFromRealmRoles_Precedence(t *testing.T) {
	assert.Equal(t, points.RoleAdmin, identity.RoleFromRealmRoles([]string{"employee", "admin", "manager"}))
	assert.Equal(t, points.RoleManager, identity.RoleFromRealmRoles([]string{"supervisor", "manager"}))
	assert.Equal(t, points.RoleSupervisor, identity.RoleFromRealmRoles([]string{"uma_authorization", "supervisor"}))
	assert.Equal(t, points.RoleEmployee, identity.RoleFromRealmRoles([]string{"employee"}))
	assert.Equal(t, points.RoleUser, identity.RoleFromRealmRoles(nil))
	assert.Equal(t, points.RoleUser, identity.RoleFromRealmRoles([]string{"offline_access"}))
}

// =============================================================================
// PROVISIONER
// =============================================================================

func TestProvisioner_FirstLoginCreatesOrganizationAndUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := identity.NewProvisioner(store, nil)

	// WHEN: Alice logs in for the first time
	user, err := p.Sync(ctx, aliceClaims())
	require.NoError(t, err)

	// THEN: Her organization exists under a slug of the group name
	org, err := store.GetOrganizationBySlug(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", org.Name)

	// AND: She is a manager in Engineering with an empty wallet
	assert.Equal(t, points.UserID("kc-alice"), user.ID)
	assert.Equal(t, org.ID, user.OrganizationID)
	assert.Equal(t, points.RoleManager, user.Role)
	assert.Equal(t, "Engineering", user.Department)
	assert.Equal(t, points.Balance{}, user.Wallet)
}

func TestProvisioner_ResyncKeepsWallet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := identity.NewProvisioner(store, nil)

	// GIVEN: Alice has points
	_, err := p.Sync(ctx, aliceClaims())
	require.NoError(t, err)
	_, err = store.AdjustPool(ctx, "kc-alice", points.PoolPersonal, 40)
	require.NoError(t, err)

	// WHEN: She logs in again after a promotion
	c := aliceClaims()
	c.RealmRoles = []string{"admin"}
	user, err := p.Sync(ctx, c)
	require.NoError(t, err)

	// THEN: Role updated, wallet untouched, no duplicate organization
	assert.Equal(t, points.RoleAdmin, user.Role)
	assert.Equal(t, int64(40), user.Wallet.Personal)

	orgs, err := store.ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
}

func TestProvisioner_NoOrganizationIsUnauthorized(t *testing.T) {
	p := identity.NewProvisioner(memory.New(), nil)

	c := aliceClaims()
	c.Groups = []string{"/Acme Corp/Engineering"}

	_, err := p.Sync(context.Background(), c)
	assert.ErrorIs(t, err, points.ErrUnauthorized)
}
