// Package authz decides what an identity may do. The profile's permissions
// column is read on every check; nothing is cached.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/model"
	"gorm.io/gorm"
)

// Objects and actions checked by the service.
const (
	ObjUsers       = "users"
	ObjDocuments   = "documents"
	ObjAdminPortal = "admin_portal"

	ActDelete      = "delete"
	ActExport      = "export"
	ActGenerateAny = "generate_any"
	ActAccess      = "access"
)

// RoleUser is assumed when the permissions column is empty.
const RoleUser = "user"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

var policies = [][]string{
	{"admin", ObjUsers, "*"},
	{"admin", ObjDocuments, "*"},
	{"admin", ObjAdminPortal, ActAccess},
}

// "administrator" is the same standing as "admin".
var groupings = [][]string{
	{"administrator", "admin"},
}

// Checker enforces the RBAC policy against the current permissions value.
type Checker struct {
	db       *gorm.DB
	enforcer *casbin.SyncedEnforcer
}

// NewChecker builds the policy.
func NewChecker(db *gorm.DB) (*Checker, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy: %w", err)
		}
	}
	for _, g := range groupings {
		if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, fmt.Errorf("add grouping: %w", err)
		}
	}
	return &Checker{db: db, enforcer: e}, nil
}

// Permissions reads the identity's permissions value. It returns a NotFound
// error when the identity has no profile.
func (c *Checker) Permissions(ctx context.Context, userID string) (string, error) {
	var p model.Profile
	err := c.db.WithContext(ctx).Select("permissions").Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("profile_not_found", "no profile for identity")
		}
		return "", apperr.FromDB("read permissions", err)
	}
	return p.PermissionsValue(), nil
}

// AllowedValue evaluates the policy for a permissions value.
func (c *Checker) AllowedValue(permissions, obj, act string) (bool, error) {
	sub := strings.ToLower(strings.TrimSpace(permissions))
	if sub == "" {
		sub = RoleUser
	}
	ok, err := c.enforcer.Enforce(sub, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}

// Allowed reads the identity's permissions and evaluates the policy.
func (c *Checker) Allowed(ctx context.Context, userID, obj, act string) (bool, error) {
	perm, err := c.Permissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return c.AllowedValue(perm, obj, act)
}

// Require returns a Forbidden error unless the identity may perform act on
// obj. An identity without a profile is forbidden.
func (c *Checker) Require(ctx context.Context, userID, obj, act string) error {
	ok, err := c.Allowed(ctx, userID, obj, act)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Forbidden("administrator standing required")
	}
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("administrator standing required")
	}
	return nil
}

// IsAdmin reports whether the identity may use the admin application.
func (c *Checker) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return c.Allowed(ctx, userID, ObjAdminPortal, ActAccess)
}
