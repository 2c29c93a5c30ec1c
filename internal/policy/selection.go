package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Selection is the allow-set being edited before a session starts.
// It enforces the selection-time rules: no hard-blocked apps, fixed apps
// cannot be removed, and at most MaxSelectedApps non-fixed apps.
type Selection struct {
	classifier *Classifier
	limit      int
	selected   []domain.AppID // non-fixed, insertion order
}

// NewSelection creates an empty selection.
func NewSelection(c *Classifier) *Selection {
	return &Selection{classifier: c, limit: MaxSelectedApps}
}

// RestoreSelection seeds a selection from a saved allow-set.
// Entries rejected by the current rules are dropped and returned.
func RestoreSelection(c *Classifier, apps []domain.AppID) (*Selection, []domain.AppID) {
	s := NewSelection(c)
	var dropped []domain.AppID
	for _, app := range apps {
		if err := s.Add(app); err != nil {
			dropped = append(dropped, app)
		}
	}
	return s, dropped
}

// Add selects an app.
func (s *Selection) Add(app domain.AppID) error {
	if app == "" {
		return fmt.Errorf("empty app id")
	}
	if s.classifier.IsFixed(app) || s.contains(app) {
		return nil
	}
	if s.classifier.Catalog().IsHardBlocked(app) {
		return fmt.Errorf("%w: %s", domain.ErrHardBlocked, app)
	}
	if len(s.selected) >= s.limit {
		return fmt.Errorf("%w: you can select only up to %d apps", domain.ErrSelectionLimit, s.limit)
	}
	s.selected = append(s.selected, app)
	return nil
}

// Remove deselects an app.
func (s *Selection) Remove(app domain.AppID) error {
	if s.classifier.IsFixed(app) {
		return fmt.Errorf("%w: %s", domain.ErrFixedApp, app)
	}
	for i, a := range s.selected {
		if a == app {
			s.selected = append(s.selected[:i], s.selected[i+1:]...)
			return nil
		}
	}
	return nil
}

// Selected returns the non-fixed apps in insertion order.
func (s *Selection) Selected() []domain.AppID {
	out := make([]domain.AppID, len(s.selected))
	copy(out, s.selected)
	return out
}

// Count returns the number of non-fixed apps.
func (s *Selection) Count() int {
	return len(s.selected)
}

// Apps returns the effective allow-set: fixed apps plus the selection.
func (s *Selection) Apps() domain.AllowSet {
	set := domain.NewAllowSet(s.classifier.FixedApps()...)
	for _, app := range s.selected {
		set.Add(app)
	}
	return set
}

func (s *Selection) contains(app domain.AppID) bool {
	for _, a := range s.selected {
		if a == app {
			return true
		}
	}
	return false
}
