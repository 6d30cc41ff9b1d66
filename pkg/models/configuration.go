package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Configuration is the parsed project file: entity specs keyed by name plus
// project-wide options. Specs are read-only once a run starts.
type Configuration struct {
	Entities    map[string]*EntitySpec
	EntityOrder []string // declaration order
	Options     ConfigurationOptions
}

// ConfigurationOptions holds project-wide settings.
type ConfigurationOptions struct {
	DataSources map[string]DataSourceConfig `yaml:"data_sources,omitempty" json:"data_sources,omitempty"`
}

// DataSourceConfig names a loader driver and its connection options.
// Everything except `driver` is passed to the driver's loader factory.
type DataSourceConfig struct {
	Driver  string         `yaml:"driver" json:"driver"`
	Options map[string]any `yaml:",inline" json:"options,omitempty"`
}

// NewConfiguration builds a configuration from specs, keeping the given order.
func NewConfiguration(specs ...*EntitySpec) *Configuration {
	cfg := &Configuration{Entities: make(map[string]*EntitySpec, len(specs))}
	for _, spec := range specs {
		cfg.Entities[spec.Name] = spec
		cfg.EntityOrder = append(cfg.EntityOrder, spec.Name)
	}
	return cfg
}

// UnmarshalYAML implements yaml.Unmarshaler. The `entities` mapping is read
// node by node so declaration order survives.
func (c *Configuration) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Entities yaml.Node            `yaml:"entities"`
		Options  ConfigurationOptions `yaml:"options"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Entities = make(map[string]*EntitySpec)
	c.EntityOrder = nil
	c.Options = raw.Options

	if raw.Entities.Kind == 0 {
		return nil
	}
	if raw.Entities.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: entities must be a mapping of entity name to specification", raw.Entities.Line)
	}

	for i := 0; i+1 < len(raw.Entities.Content); i += 2 {
		name := raw.Entities.Content[i].Value
		if _, exists := c.Entities[name]; exists {
			return fmt.Errorf("line %d: duplicate entity %q", raw.Entities.Content[i].Line, name)
		}
		spec := &EntitySpec{}
		if err := raw.Entities.Content[i+1].Decode(spec); err != nil {
			return fmt.Errorf("entity %q: %w", name, err)
		}
		spec.Name = name
		if spec.Type == "" {
			spec.Type = EntityTypeData
		}
		c.Entities[name] = spec
		c.EntityOrder = append(c.EntityOrder, name)
	}
	return nil
}

// Get returns the entity spec with the given name.
func (c *Configuration) Get(name string) (*EntitySpec, bool) {
	spec, ok := c.Entities[name]
	return spec, ok
}

// Has reports whether the configuration declares the named entity.
func (c *Configuration) Has(name string) bool {
	_, ok := c.Entities[name]
	return ok
}

// Names returns entity names in declaration order.
func (c *Configuration) Names() []string {
	return append([]string(nil), c.EntityOrder...)
}
