package smarthome

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Driver supplies the action handlers for a backing entity.
type Driver interface {
	Actions(entityID string) (map[string]ActionFunc, error)
}

// File is a registry definition as stored on disk. Backend names the driver
// for appliances that do not name their own.
type File struct {
	Backend    string          `yaml:"backend" json:"backend"`
	Defaults   map[string]any  `yaml:"defaults" json:"defaults"`
	Appliances []ApplianceSpec `yaml:"appliances" json:"appliances"`
}

// ApplianceSpec declares one appliance. EntityID is the device's id within
// its backend; an appliance without one has no actions.
type ApplianceSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Backend   string         `yaml:"backend" json:"backend"`
	EntityID  string         `yaml:"entity_id" json:"entity_id"`
	Details   map[string]any `yaml:"details" json:"details"`
	Overrides map[string]any `yaml:"overrides" json:"overrides"`
}

// LoadFile reads a registry definition. Files ending in .json or .jsonc may
// contain comments and trailing commas; everything else is read as YAML.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("parsing registry file: %w", err)
		}
		if err := json.Unmarshal(std, &f); err != nil {
			return nil, fmt.Errorf("parsing registry file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing registry file: %w", err)
		}
	}

	return &f, nil
}

// Build creates a Registry whose devices are driven by the named drivers.
// defaults from the caller apply where the file defines none.
func (f *File) Build(drivers map[string]Driver, defaults map[string]any, logger *slog.Logger) (*Registry, error) {
	merged := make(map[string]any, len(defaults)+len(f.Defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range f.Defaults {
		merged[k] = v
	}

	registry := NewRegistry(merged, logger)
	for i, spec := range f.Appliances {
		if spec.ID == "" {
			return nil, fmt.Errorf("appliance %d: missing id", i)
		}
		if _, exists := registry.Lookup(spec.ID); exists {
			return nil, fmt.Errorf("appliance %s: duplicate id", spec.ID)
		}

		device := NewDevice(spec.Details)
		if spec.EntityID != "" {
			driver, err := f.driver(spec, drivers)
			if err != nil {
				return nil, fmt.Errorf("appliance %s: %w", spec.ID, err)
			}
			actions, err := driver.Actions(spec.EntityID)
			if err != nil {
				return nil, fmt.Errorf("appliance %s: %w", spec.ID, err)
			}
			for name, fn := range actions {
				device.Handle(name, fn)
			}
		}

		if err := registry.Add(spec.ID, device, spec.Overrides); err != nil {
			return nil, err
		}
	}

	logger.Info("registry loaded", "appliances", registry.Len())
	return registry, nil
}

// driver picks the appliance's backend, then the file's. With neither named,
// a single configured driver is used.
func (f *File) driver(spec ApplianceSpec, drivers map[string]Driver) (Driver, error) {
	backend := spec.Backend
	if backend == "" {
		backend = f.Backend
	}
	if backend == "" {
		if len(drivers) != 1 {
			return nil, fmt.Errorf("no backend named and %d configured", len(drivers))
		}
		for _, d := range drivers {
			return d, nil
		}
	}

	d, ok := drivers[backend]
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured", backend)
	}
	return d, nil
}
