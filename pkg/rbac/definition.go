package rbac

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PermissionDefinition is one row of the permission table
type PermissionDefinition struct {
	ID          string `yaml:"id" json:"id"`
	Resource    string `yaml:"resource" json:"resource"`
	Action      string `yaml:"action" json:"action"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Scoped      bool   `yaml:"scoped,omitempty" json:"scoped,omitempty"`
}

// RoleDefinition is one row of the role table
type RoleDefinition struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string   `yaml:"description,omitempty" json:"description,omitempty"`
	Permissions    []string `yaml:"permissions" json:"permissions"`
	HierarchyLevel int      `yaml:"hierarchy_level" json:"hierarchy_level"`
	Parent         string   `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// Definition is the declarative configuration loaded once at startup
type Definition struct {
	Permissions []PermissionDefinition `yaml:"permissions" json:"permissions"`
	Roles       []RoleDefinition       `yaml:"roles" json:"roles"`
}

// ParseDefinition decodes a YAML or JSON definition table.
// Unknown fields are rejected so that typos fail loading instead of being ignored.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &def, nil
}

// LoadDefinitionFile reads and decodes a definition table from disk
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definition file %s: %w", path, err)
	}
	return def, nil
}

// Marshal renders the definition as YAML
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
