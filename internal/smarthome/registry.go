package smarthome

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"askhome/internal/alexa"
)

var ErrEmptyID = errors.New("appliance id is empty")

type entry struct {
	id        string
	appliance Appliance
	details   map[string]any
}

// Registry holds the appliances announced during discovery, in the order
// they were added.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	defaults map[string]any
	entries  []entry
	index    map[string]int
}

func NewRegistry(defaults map[string]any, logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		defaults: maps.Clone(defaults),
		index:    make(map[string]int),
	}
}

// Add registers appliance under id. details override the appliance's own
// attributes for this registration. Re-adding an id replaces it in place.
func (r *Registry) Add(id string, appliance Appliance, details map[string]any) error {
	if id == "" {
		return ErrEmptyID
	}
	if appliance == nil {
		return fmt.Errorf("appliance %s: nil appliance", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{id: id, appliance: appliance, details: maps.Clone(details)}
	if i, ok := r.index[id]; ok {
		r.entries[i] = e
		r.logger.Debug("replaced appliance", "id", id)
		return nil
	}

	r.index[id] = len(r.entries)
	r.entries = append(r.entries, e)
	r.logger.Debug("registered appliance", "id", id, "actions", appliance.Actions())
	return nil
}

func (r *Registry) Lookup(id string) (Appliance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.entries[i].appliance, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Appliances() []alexa.RegisteredAppliance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]alexa.RegisteredAppliance, len(r.entries))
	for i, e := range r.entries {
		result[i] = alexa.RegisteredAppliance{ID: e.id, Appliance: e.appliance, Details: e.details}
	}
	return result
}

func (r *Registry) DefaultDetail(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.defaults[name]
	return v, ok
}
