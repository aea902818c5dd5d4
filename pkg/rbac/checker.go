package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/floworks/flowgate/pkg/rbac"

// Checker answers permission checks. All checks are pure reads; concurrent
// callers need no coordination.
type Checker struct {
	store    Store
	users    UserDirectory
	catalog  ResourceCatalog
	resolver *Resolver
	cache    Cache
	metrics  *Metrics
	tracer   trace.Tracer
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCache injects a decision cache. Without it every check goes to the
// store.
func WithCache(c Cache) CheckerOption {
	return func(ch *Checker) { ch.cache = c }
}

// WithMetrics injects engine metrics.
func WithMetrics(m *Metrics) CheckerOption {
	return func(ch *Checker) { ch.metrics = m }
}

// NewChecker creates a permission checker.
func NewChecker(store Store, users UserDirectory, catalog ResourceCatalog, opts ...CheckerOption) *Checker {
	c := &Checker{
		store:    store,
		users:    users,
		catalog:  catalog,
		resolver: NewResolver(store, catalog),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanAccess reports whether the user may perform the named action at the
// scope instance.
//
// Evaluation order: superuser bypass, Global-Admin bypass, role resolution
// (direct assignment wins, flows inherit from their parent project), then
// the role-permission join for (permission, scope kind). An unknown user is
// surfaced as *UserNotFoundError rather than a silent false, so caller bugs
// are not masked as denials.
func (c *Checker) CanAccess(ctx context.Context, userID uuid.UUID, permission string, scope ScopeType, scopeID *uuid.UUID) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "rbac.CanAccess", trace.WithAttributes(
		attribute.String("rbac.permission", permission),
		attribute.String("rbac.scope", string(scope)),
	))
	defer span.End()

	start := time.Now()
	allowed, err := c.canAccess(ctx, userID, permission, scope, scopeID)
	c.metrics.observeDuration("single", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("rbac.allowed", allowed))
	return allowed, nil
}

func (c *Checker) canAccess(ctx context.Context, userID uuid.UUID, permission string, scope ScopeType, scopeID *uuid.UUID) (bool, error) {
	if err := validateScopeShape(scope, scopeID); err != nil {
		return false, err
	}

	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsSuperuser {
		c.metrics.observeCheck(PathSuperuser, true)
		return true, nil
	}

	isAdmin, err := c.store.HasGlobalRole(ctx, userID, RoleAdmin)
	if err != nil {
		return false, err
	}
	if isAdmin {
		c.metrics.observeCheck(PathGlobalAdmin, true)
		return true, nil
	}

	key := ""
	if c.cache != nil {
		key = decisionKey(userID, permission, scope, scopeID)
		if allowed, ok := c.cache.Get(ctx, key); ok {
			c.metrics.observeCacheHit(true)
			c.metrics.observeCheck(PathCached, allowed)
			return allowed, nil
		}
		c.metrics.observeCacheHit(false)
	}

	allowed, err := c.resolveAndCheck(ctx, userID, permission, scope, scopeID)
	if err != nil {
		return false, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, allowed)
	}
	c.metrics.observeCheck(PathResolved, allowed)
	return allowed, nil
}

func (c *Checker) resolveAndCheck(ctx context.Context, userID uuid.UUID, permission string, scope ScopeType, scopeID *uuid.UUID) (bool, error) {
	role, err := c.resolver.Resolve(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}
	return c.store.RoleHasPermission(ctx, role.ID, permission, scope)
}
