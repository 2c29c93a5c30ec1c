// Package policy decides which applications may be in the foreground during a focus session.
// It owns the hard-block catalog and fixed-app resolution; it does not own persisted selection state.
package policy

import (
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// MaxSelectedApps caps the number of non-fixed apps in an allow-set.
const MaxSelectedApps = 5

// Classifier implements classify(appId, allowSet).
// Fixed apps are recomputed from DeviceDefaults on every call.
type Classifier struct {
	catalog  *Catalog
	defaults domain.DeviceDefaults
}

// NewClassifier creates a classifier. defaults may be nil (no fixed apps).
func NewClassifier(catalog *Catalog, defaults domain.DeviceDefaults) *Classifier {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Classifier{catalog: catalog, defaults: defaults}
}

// Catalog returns the underlying catalog.
func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// FixedApps returns the platform default dialer and messaging app.
func (c *Classifier) FixedApps() []domain.AppID {
	if c.defaults == nil {
		return nil
	}
	var fixed []domain.AppID
	for _, app := range []domain.AppID{c.defaults.DefaultDialer(), c.defaults.DefaultMessaging()} {
		if app == "" {
			continue
		}
		if len(fixed) == 1 && fixed[0] == app {
			continue
		}
		fixed = append(fixed, app)
	}
	return fixed
}

// IsFixed reports whether app is currently a platform default.
func (c *Classifier) IsFixed(app domain.AppID) bool {
	for _, f := range c.FixedApps() {
		if f == app {
			return true
		}
	}
	return false
}

// Classify returns the decision for app under allow.
// Order: Fixed, HardBlocked, Allowed, NotSelected. Hard-block membership uses the
// current catalog, so entries saved under an older catalog are still rejected.
func (c *Classifier) Classify(app domain.AppID, allow domain.AllowSet) domain.PolicyDecision {
	if c.IsFixed(app) {
		return domain.DecisionFixed
	}
	if c.catalog.IsHardBlocked(app) {
		return domain.DecisionHardBlocked
	}
	if allow.Contains(app) {
		return domain.DecisionAllowed
	}
	return domain.DecisionNotSelected
}

// EffectiveAllowSet returns fixed apps plus every member of allow that classifies as Allowed.
func (c *Classifier) EffectiveAllowSet(allow domain.AllowSet) domain.AllowSet {
	effective := domain.NewAllowSet(c.FixedApps()...)
	for app := range allow {
		if c.Classify(app, allow) == domain.DecisionAllowed {
			effective.Add(app)
		}
	}
	return effective
}
