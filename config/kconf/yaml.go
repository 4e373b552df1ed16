/*
 * kernelsim - optional YAML boot manifest, an alternative surface over the
 * same directive registry LoadFile's line grammar dispatches through.
 *
 * Grounded on tinyrange-cc's structured gopkg.in/yaml.v3 configuration
 * loading, reusing this package's existing Option/FirstOption model and
 * model registry instead of building a second one: every subsystem's
 * init()-registered handler (NUSERS, TERM, DISK, FLASH, ...) runs
 * unchanged whether the directive came from a classic config line or a
 * YAML manifest entry.
 */

package kconf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlManifest is a boot manifest's top-level shape: a flat list of
// directives, each naming the same registered model a config-line
// directive would.
type yamlManifest struct {
	Directives []yamlDirective `yaml:"directives"`
}

type yamlDirective struct {
	Name    string       `yaml:"name"`
	Unit    string       `yaml:"unit"`  // hex unit address, for TypeModel/TypeOptions directives
	Value   string       `yaml:"value"` // bare value, for TypeOption directives
	Options []yamlOption `yaml:"options"`
}

type yamlOption struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// LoadYAMLFile parses a YAML boot manifest, dispatching each directive to
// the handler the relevant subsystem registered, the same as LoadFile.
func LoadYAMLFile(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	var manifest yamlManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("kconf: yaml: %w", err)
	}

	for _, d := range manifest.Directives {
		if err := applyYAMLDirective(d); err != nil {
			return err
		}
	}
	return nil
}

func applyYAMLDirective(d yamlDirective) error {
	mod := strings.ToUpper(d.Name)

	options := make([]Option, len(d.Options))
	for i, o := range d.Options {
		options[i] = Option{Name: o.Name, EqualOpt: o.Value}
	}

	first := &FirstOption{Unit: NoUnit, Value: d.Value}
	if d.Unit != "" {
		unit, err := strconv.ParseUint(d.Unit, 16, 16)
		if err != nil {
			return fmt.Errorf("kconf: yaml: directive %s: bad unit %q: %w", d.Name, d.Unit, err)
		}
		first.Unit = uint16(unit)
		first.IsAddr = true
	}

	switch getKind(mod) {
	case TypeModel:
		if !first.IsAddr {
			return fmt.Errorf("kconf: yaml: directive %s requires a unit", d.Name)
		}
		return createModel(mod, first, options)
	case TypeOption:
		return createOption(mod, first)
	case TypeOptions:
		return createOptions(mod, first, options)
	case TypeSwitch:
		return createSwitch(mod)
	default:
		return fmt.Errorf("kconf: yaml: no directive named %s registered", d.Name)
	}
}
