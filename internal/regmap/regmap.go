// Package regmap holds the vendor register catalog: which holding registers
// exist, how wide they are, how their raw words become physical values, and
// which enum tables translate status codes. The catalog is data, not code; it
// is loaded from yaml and validated once at startup.
package regmap

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rule selects how raw register words are decoded.
type Rule string

const (
	RuleUnsigned16 Rule = "unsigned16"
	RuleSigned16   Rule = "signed16"
	// RuleSigned32 composes two adjacent registers, high word first, and
	// applies two's-complement sign to the composed 32-bit value.
	RuleSigned32 Rule = "signed32"
	// RuleStatus maps the raw word through an enum table to a label.
	RuleStatus Rule = "status"
)

// Factor is a decimal scale factor that unmarshals from a yaml scalar.
// Kept decimal so that e.g. 0.1 stays exactly 0.1 through decoding.
type Factor struct {
	decimal.Decimal
}

func (f *Factor) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("regmap: bad scale factor %q: %w", node.Value, err)
	}
	f.Decimal = d
	return nil
}

// Descriptor describes one register of the vendor map.
// Immutable once loaded.
type Descriptor struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	Address uint16 `yaml:"address"`
	Words   uint16 `yaml:"words"`
	Rule    Rule   `yaml:"rule"`
	Scale   Factor `yaml:"scale"`
	Unit    string `yaml:"unit"`
	Enum    string `yaml:"enum"`
	Enabled *bool  `yaml:"enabled"`
	Group   string `yaml:"group"`

	// Labels is the resolved enum table for RuleStatus descriptors.
	// Filled by Load from the map-level enum section.
	Labels map[uint16]string `yaml:"-"`
}

// IsEnabled reports whether the register is polled by default.
// Registers are enabled unless the map says otherwise.
func (d Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Map is an ordered catalog of register descriptors plus the enum tables
// they reference.
type Map struct {
	Version   string                       `yaml:"version"`
	Enums     map[string]map[uint16]string `yaml:"enums"`
	Registers []Descriptor                 `yaml:"registers"`
}

// Parse decodes a yaml register map, resolves enum references and validates
// the result. A bad map is a configuration error and fails here, never at
// poll time.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("regmap: parse: %w", err)
	}
	normalize(&m)
	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads a register map from disk.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("regmap: read %s: %w", path, err)
	}
	return Parse(data)
}

// Enabled returns the enabled descriptors in catalog order.
func (m *Map) Enabled() []Descriptor {
	out := make([]Descriptor, 0, len(m.Registers))
	for _, d := range m.Registers {
		if d.IsEnabled() {
			out = append(out, d)
		}
	}
	return out
}

// Lookup returns the descriptor for a key.
func (m *Map) Lookup(key string) (Descriptor, bool) {
	for _, d := range m.Registers {
		if d.Key == key {
			return d, true
		}
	}
	return Descriptor{}, false
}

// normalize fills derived fields. It runs before validate, so it must not
// assume a well-formed map.
func normalize(m *Map) {
	for i := range m.Registers {
		d := &m.Registers[i]

		if d.Words == 0 {
			if d.Rule == RuleSigned32 {
				d.Words = 2
			} else {
				d.Words = 1
			}
		}
		if d.Scale.IsZero() {
			d.Scale = Factor{decimal.NewFromInt(1)}
		}
		if d.Rule == RuleStatus && d.Enum != "" {
			d.Labels = m.Enums[d.Enum]
		}
	}
}

func validate(m *Map) error {
	seen := make(map[string]struct{}, len(m.Registers))

	for _, d := range m.Registers {
		if d.Key == "" {
			return fmt.Errorf("regmap: register at address %d has no key", d.Address)
		}
		if _, dup := seen[d.Key]; dup {
			return fmt.Errorf("regmap: duplicate key %q", d.Key)
		}
		seen[d.Key] = struct{}{}

		switch d.Rule {
		case RuleUnsigned16, RuleSigned16, RuleStatus:
			if d.Words != 1 {
				return fmt.Errorf("regmap: %q: rule %s requires 1 word, got %d", d.Key, d.Rule, d.Words)
			}
		case RuleSigned32:
			if d.Words != 2 {
				return fmt.Errorf("regmap: %q: rule signed32 requires 2 words, got %d", d.Key, d.Words)
			}
		default:
			return fmt.Errorf("regmap: %q: unknown rule %q", d.Key, d.Rule)
		}

		if d.Rule == RuleStatus {
			if d.Enum == "" {
				return fmt.Errorf("regmap: %q: rule status requires an enum table", d.Key)
			}
			if _, ok := m.Enums[d.Enum]; !ok {
				return fmt.Errorf("regmap: %q: enum table %q not defined", d.Key, d.Enum)
			}
		}

		if d.Scale.IsNegative() {
			return fmt.Errorf("regmap: %q: scale must be positive, got %s", d.Key, d.Scale)
		}

		if end := uint32(d.Address) + uint32(d.Words) - 1; end > 0xFFFF {
			return fmt.Errorf("regmap: %q: register span %d+%d exceeds address space", d.Key, d.Address, d.Words)
		}
	}

	return nil
}
