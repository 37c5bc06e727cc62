// Package units defines generation units and the dispatch table that maps
// unit types to them.
package units

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/forge/pkg/models"
)

// Unit turns a snapshot of the run into output files for one task. A unit
// must not mutate shared state; everything it produces is in its return value.
type Unit interface {
	Generate(ctx context.Context, snapshot models.Snapshot) (*models.UnitOutput, error)
}

// UnitFunc adapts a function to the Unit interface.
type UnitFunc func(ctx context.Context, snapshot models.Snapshot) (*models.UnitOutput, error)

// Generate calls f.
func (f UnitFunc) Generate(ctx context.Context, snapshot models.Snapshot) (*models.UnitOutput, error) {
	return f(ctx, snapshot)
}

// Registry is the dispatch table from unit type to unit.
type Registry struct {
	mu    sync.RWMutex
	units map[models.UnitType]Unit
	order []models.UnitType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[models.UnitType]Unit)}
}

// Register adds or replaces the unit for a type.
func (r *Registry) Register(t models.UnitType, u Unit) error {
	if t == "" {
		return fmt.Errorf("register unit: empty unit type")
	}
	if u == nil {
		return fmt.Errorf("register unit %s: nil unit", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[t]; !exists {
		r.order = append(r.order, t)
	}
	r.units[t] = u
	return nil
}

// Get returns the unit for a type.
func (r *Registry) Get(t models.UnitType) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[t]
	return u, ok
}

// Has reports whether a unit is registered for the type.
func (r *Registry) Has(t models.UnitType) bool {
	_, ok := r.Get(t)
	return ok
}

// Types returns the registered unit types in registration order.
func (r *Registry) Types() []models.UnitType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.UnitType(nil), r.order...)
}
