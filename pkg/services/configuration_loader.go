package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// ConfigurationLoader reads project files into configurations.
type ConfigurationLoader struct {
	logger *zap.Logger
}

// NewConfigurationLoader creates a configuration loader.
func NewConfigurationLoader(logger *zap.Logger) *ConfigurationLoader {
	return &ConfigurationLoader{logger: logger.Named("config-loader")}
}

// LoadFile reads and parses the project file at path.
func (l *ConfigurationLoader) LoadFile(path string) (*models.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Info("Loaded configuration",
		zap.String("path", path),
		zap.Int("entities", len(cfg.EntityOrder)),
		zap.Int("data_sources", len(cfg.Options.DataSources)))
	return cfg, nil
}

// Parse decodes a project document. ${VAR} references are expanded from the
// environment first so credentials can stay out of the file. Unknown entity
// keys are rejected.
func (l *ConfigurationLoader) Parse(data []byte) (*models.Configuration, error) {
	expanded := os.ExpandEnv(string(data))

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader([]byte(expanded))).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return models.NewConfiguration(), nil
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if err := checkEntityFields(&root); err != nil {
		return nil, err
	}

	cfg := &models.Configuration{}
	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

var entityFields = yamlFieldNames(reflect.TypeOf(models.EntitySpec{}))

func yamlFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			names[name] = true
		}
	}
	return names
}

// checkEntityFields rejects misspelled keys inside entity specs, which yaml
// would otherwise drop silently.
func checkEntityFields(root *yaml.Node) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	top := root.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "entities" || top.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		entities := top.Content[i+1]
		for j := 0; j+1 < len(entities.Content); j += 2 {
			body := entities.Content[j+1]
			if body.Kind != yaml.MappingNode {
				continue
			}
			for k := 0; k+1 < len(body.Content); k += 2 {
				key := body.Content[k]
				if !entityFields[key.Value] {
					return fmt.Errorf("line %d: entity %q: unknown field %q", key.Line, entities.Content[j].Value, key.Value)
				}
			}
		}
	}
	return nil
}
