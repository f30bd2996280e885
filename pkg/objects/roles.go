package objects

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleTemplate is the metadata applied to a state on creation.
type RoleTemplate struct {
	Role  string    `yaml:"role" json:"role"`
	Type  ValueType `yaml:"type" json:"type,omitempty"`
	Unit  string    `yaml:"unit" json:"unit,omitempty"`
	Write *bool     `yaml:"write" json:"write,omitempty"`
}

// DefaultRole is used for fields without a template.
const DefaultRole = "state"

// RoleTable maps "{device}_{field}" or "{field}" to a template.
// It is filled once at startup and read-only afterwards.
type RoleTable map[string]RoleTemplate

// BuiltinRoles returns the templates every table starts from.
func BuiltinRoles() RoleTable {
	return RoleTable{
		"rssi":       {Role: "value.rssi", Type: ValueNumber, Unit: "dBm", Write: boolPtr(false)},
		"EM_total":   {Role: "value", Type: ValueNumber},
		"EM_current": {Role: "value", Type: ValueNumber},
		"EM_peak":    {Role: "value", Type: ValueNumber},
	}
}

// LoadRoleFile merges the YAML role file at path into t.
// A missing file is not an error.
func (t RoleTable) LoadRoleFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read role file: %w", err)
	}
	var file map[string]RoleTemplate
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse role file %s: %w", path, err)
	}
	for k, v := range file {
		t[k] = v
	}
	return nil
}

// MergeNative merges the native map of a meta object. Entries are either
// a bare role string or a map with role/type/unit keys.
func (t RoleTable) MergeNative(native map[string]any) {
	for k, raw := range native {
		switch v := raw.(type) {
		case string:
			t[k] = RoleTemplate{Role: v}
		case map[string]any:
			tpl := RoleTemplate{}
			tpl.Role, _ = v["role"].(string)
			if typ, ok := v["type"].(string); ok {
				tpl.Type = ValueType(typ)
			}
			tpl.Unit, _ = v["unit"].(string)
			if w, ok := v["write"].(bool); ok {
				tpl.Write = boolPtr(w)
			}
			t[k] = tpl
		}
	}
}

// Lookup resolves the template for a field of a device kind.
func (t RoleTable) Lookup(device, field string) (RoleTemplate, bool) {
	if device != "" {
		if tpl, ok := t[device+"_"+field]; ok {
			return tpl, true
		}
	}
	tpl, ok := t[field]
	return tpl, ok
}

// StateCommon builds the common section of a new state for field,
// falling back to the default role and the type of the sample value.
func (t RoleTable) StateCommon(device, field string, sample any) Common {
	c := Common{
		Name:  field,
		Role:  DefaultRole,
		Type:  InferType(sample),
		Read:  true,
		Write: true,
	}
	tpl, ok := t.Lookup(device, field)
	if !ok {
		return c
	}
	if tpl.Role != "" {
		c.Role = tpl.Role
	}
	if tpl.Type != "" {
		c.Type = tpl.Type
	}
	c.Unit = tpl.Unit
	if tpl.Write != nil {
		c.Write = *tpl.Write
	}
	return c
}

func boolPtr(b bool) *bool { return &b }
