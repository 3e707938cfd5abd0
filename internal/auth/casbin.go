package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

// Object and action constants for authorization checks.
const (
	// ObjectTypeIAM covers identity administration operations.
	ObjectTypeIAM = "iam"

	// IAMGrantAdmin allows promoting another account to administrator.
	IAMGrantAdmin = "grant-admin"
)

// AdminRole is the Casbin role granted to accounts whose verified claims
// carry the admin flag.
const AdminRole = "role:admin"

// InitEnforcer creates a Casbin enforcer with the embedded RBAC model and
// the static policy set. Policies are seeded in code: the role taxonomy of
// this system is fixed (admin or not), so there is no adapter-backed policy
// storage.
func InitEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicy(AdminRole, ObjectTypeIAM, IAMGrantAdmin); err != nil {
		return nil, fmt.Errorf("seed casbin policies: %w", err)
	}

	return enforcer, nil
}

// ApplyClaimsGrouping maps a principal onto Casbin roles from its verified
// claims. The grouping is recomputed on every request so a claim change is
// honored on the next verification, never retroactively.
func ApplyClaimsGrouping(enforcer casbin.IEnforcer, principalID string, claims VerifiedClaims) error {
	if claims.Admin {
		if _, err := enforcer.AddGroupingPolicy(principalID, AdminRole); err != nil {
			return fmt.Errorf("apply admin grouping: %w", err)
		}
		return nil
	}
	if _, err := enforcer.RemoveGroupingPolicy(principalID, AdminRole); err != nil {
		return fmt.Errorf("remove admin grouping: %w", err)
	}
	return nil
}

// Authorize checks whether the principal may perform act on obj.
func Authorize(enforcer casbin.IEnforcer, principalID, obj, act string) (bool, error) {
	allowed, err := enforcer.Enforce(principalID, obj, act)
	if err != nil {
		return false, fmt.Errorf("casbin enforce: %w", err)
	}
	return allowed, nil
}
