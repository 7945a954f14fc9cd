// Package permission authorizes admin routes with casbin. Policies are
// stored in the casbin_rule table through the gorm adapter.
package permission

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/shared/constants"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	ResourceTransactions = "transactions"
	ResourceRecovery     = "recovery"

	ActionRead = "read"
	ActionRun  = "run"
)

// rbacModel matches a role (or a user holding it) against resource/action.
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
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// DefaultPolicies grants the admin role every payment operations permission.
var DefaultPolicies = [][]string{
	{constants.RoleAdmin, ResourceTransactions, ActionRead},
	{constants.RoleAdmin, ResourceRecovery, ActionRun},
}

type Enforcer struct {
	enforcer *casbin.Enforcer
	mu       sync.RWMutex
	logger   logger.Interface
}

func NewEnforcer(db *gorm.DB, log logger.Interface) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	return &Enforcer{
		enforcer: enforcer,
		logger:   log,
	}, nil
}

// SeedDefaults adds any missing DefaultPolicies.
func (e *Enforcer) SeedDefaults() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	for _, p := range DefaultPolicies {
		ok, err := e.enforcer.AddPolicy(p[0], p[1], p[2])
		if err != nil {
			return fmt.Errorf("failed to add policy [%s, %s, %s]: %w", p[0], p[1], p[2], err)
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		e.logger.Infow("default permissions seeded", "added", added)
	}
	return nil
}

// Enforce reports whether subject, a role or a user id, may act on resource.
func (e *Enforcer) Enforce(subject, resource, action string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	allowed, err := e.enforcer.Enforce(subject, resource, action)
	if err != nil {
		e.logger.Errorw("permission check failed", "error", err, "subject", subject, "resource", resource, "action", action)
		return false, fmt.Errorf("permission check failed: %w", err)
	}

	return allowed, nil
}

func (e *Enforcer) AddPolicy(role, resource, action string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.AddPolicy(role, resource, action); err != nil {
		e.logger.Errorw("failed to add policy", "error", err)
		return fmt.Errorf("failed to add policy: %w", err)
	}
	return nil
}

func (e *Enforcer) RemovePolicy(role, resource, action string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.RemovePolicy(role, resource, action); err != nil {
		e.logger.Errorw("failed to remove policy", "error", err)
		return fmt.Errorf("failed to remove policy: %w", err)
	}
	return nil
}

func (e *Enforcer) AddRoleForUser(userID, role string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.AddRoleForUser(userID, role); err != nil {
		e.logger.Errorw("failed to add role for user", "error", err, "user_id", userID, "role", role)
		return fmt.Errorf("failed to add role for user: %w", err)
	}
	return nil
}

func (e *Enforcer) LoadPolicy() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}

	e.logger.Infow("policy reloaded successfully")
	return nil
}
