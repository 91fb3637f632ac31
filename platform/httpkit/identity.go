// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated member's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access member information without depending on Gin.
type Identity interface {
	// MemberID returns the authenticated member's ID.
	MemberID() uuid.UUID
	// TenantID returns the tenant the member acts within.
	TenantID() uuid.UUID
	// Roles returns the member's assigned roles.
	Roles() []string
	// HasRole checks if the member has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the member is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	memberID      uuid.UUID
	tenantID      uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) MemberID() uuid.UUID {
	return i.memberID
}

func (i *identity) TenantID() uuid.UUID {
	return i.tenantID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if member info is not present.
func GetIdentity(c *gin.Context) Identity {
	memberID, memberOK := c.Get(ContextMemberIDKey)
	roles, rolesOK := c.Get(ContextRolesKey)

	if !memberOK {
		return &identity{authenticated: false}
	}

	mid, ok := memberID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleList []string
	if rolesOK {
		roleList, _ = roles.([]string)
	}

	var tid uuid.UUID
	if raw, ok := c.Get(ContextTenantIDKey); ok {
		tid, _ = raw.(uuid.UUID)
	}

	return &identity{
		memberID:      mid,
		tenantID:      tid,
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the member is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
