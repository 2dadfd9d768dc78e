// Package project reads and writes the per-project zonke files: the YAML
// configuration holding the version ledger, and the credentials file.
package project

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/ledger"
)

// ConfigFile is the default configuration file name.
const ConfigFile = "zonke.yaml"

//go:embed schemas/zonke-config.v1.schema.json
var schemaFS embed.FS

// Config represents the zonke.yaml configuration file.
type Config struct {
	// Framework that produced the build output
	Framework framework.Framework `yaml:"framework"`

	// AWSHostedZone is the name (not id) of the hosted zone to deploy into
	AWSHostedZone string `yaml:"awsHostedZone"`

	// BuildOutputDirectory is archived and deployed
	BuildOutputDirectory string `yaml:"buildOutputDirectory"`

	// PackageJSONPath is copied into server builds that ship without node_modules
	PackageJSONPath string `yaml:"packageJsonPath,omitempty"`

	// PublicDirectory is bundled next to the build for single-archive deployments
	PublicDirectory string `yaml:"publicDirectory,omitempty"`

	// UploadLinkExpiration overrides the signed URL lifetime, in seconds
	UploadLinkExpiration int `yaml:"uploadLinkExpiration,omitempty"`

	// Environment is the deployed environment and its version ledger
	Environment *ledger.Environment `yaml:"environment,omitempty"`
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Marshal encodes the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate checks invariants the schema cannot express.
func (c *Config) Validate() error {
	if !framework.Supported(c.Framework) {
		return fmt.Errorf("unsupported framework: %s", c.Framework)
	}
	if c.BuildOutputDirectory == "" {
		return fmt.Errorf("buildOutputDirectory is required")
	}
	if c.Environment != nil {
		if err := c.Environment.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaError lists every schema violation in a configuration document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("config does not match schema: %s", strings.Join(e.Violations, "; "))
}

func validateSchema(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		return &SchemaError{Violations: []string{"config is empty"}}
	}

	schemaBytes, err := schemaFS.ReadFile("schemas/zonke-config.v1.schema.json")
	if err != nil {
		return fmt.Errorf("failed to load JSON schema: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaBytes), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &SchemaError{Violations: violations}
}
