package rtde

import (
	"encoding/xml"
	"fmt"
	"os"
)

// DefaultRecipeKey is the recipe recorded by default.
const DefaultRecipeKey = "out"

// Config is an RTDE recipe configuration file:
//
//	<rtde_config>
//	  <recipe key="out">
//	    <field name="timestamp" type="DOUBLE"/>
//	    <field name="actual_q" type="VECTOR6D"/>
//	  </recipe>
//	</rtde_config>
type Config struct {
	XMLName xml.Name       `xml:"rtde_config"`
	Recipes []ConfigRecipe `xml:"recipe"`
}

// ConfigRecipe is a named list of fields.
type ConfigRecipe struct {
	Key    string        `xml:"key,attr"`
	Fields []ConfigField `xml:"field"`
}

// ConfigField is a field declaration.
type ConfigField struct {
	Name string    `xml:"name,attr"`
	Type FieldType `xml:"type,attr"`
}

// LoadConfig reads a recipe configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rtde config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a recipe configuration and checks its field types.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rtde config: %w", err)
	}
	for _, r := range cfg.Recipes {
		if len(r.Fields) == 0 {
			return nil, fmt.Errorf("recipe %q has no fields", r.Key)
		}
		for _, f := range r.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("recipe %q: field without name", r.Key)
			}
			if !f.Type.Valid() {
				return nil, fmt.Errorf("recipe %q: field %s has unsupported type %q", r.Key, f.Name, f.Type)
			}
		}
	}
	return &cfg, nil
}

// Recipe returns the fields of the recipe with the given key.
func (c *Config) Recipe(key string) ([]Field, error) {
	for _, r := range c.Recipes {
		if r.Key != key {
			continue
		}
		fields := make([]Field, len(r.Fields))
		for i, f := range r.Fields {
			fields[i] = Field{Name: f.Name, Type: f.Type}
		}
		return fields, nil
	}
	return nil, fmt.Errorf("recipe %q not found", key)
}
