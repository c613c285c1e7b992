// Package declaration is the typed, validated representation of a build
// request: the root struct a YAML/JSON file parses into, plus the
// byte-to-struct parse itself.
//
// Grounded on original_source/config.py (the UserDeclaration, LightSetupConfig,
// ScriptInstall, HeavySetup dataclasses) and original_source/parser.py
// (DeclarationParser._parse_dict), trimmed of the legacy stages/topological-sort
// path which predates the layer model and is out of scope.
package declaration

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// LightSetupTask is one grouped config task under light_setup.<category>.
type LightSetupTask struct {
	Name         string   `json:"name" yaml:"name"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Commands     []string `json:"commands" yaml:"commands"`
}

// ScriptInstall is one heavy_setup.script_installs entry. At most one of
// Commands or File may be set.
type ScriptInstall struct {
	Name         string   `json:"name" yaml:"name"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Commands     []string `json:"commands" yaml:"commands"`
	File         string   `json:"file" yaml:"file"`
	Copies       []string `json:"copies" yaml:"copies"`
}

// HeavySetup groups the package-manager and script-install work.
type HeavySetup struct {
	AptPackages    []string        `json:"apt_packages" yaml:"apt_packages"`
	YumPackages    []string        `json:"yum_packages" yaml:"yum_packages"`
	PipPackages    []string        `json:"pip_packages" yaml:"pip_packages"`
	ScriptInstalls []ScriptInstall `json:"script_installs" yaml:"script_installs"`
}

// Declaration is the root of a build request.
type Declaration struct {
	User string `json:"user" yaml:"user"`
	Sudo bool   `json:"sudo" yaml:"sudo"`

	BaseImage string `json:"base_image" yaml:"base_image"`

	// Legacy top-level fields, retained for backward compatibility.
	AptPackages []string `json:"apt_packages" yaml:"apt_packages"`
	YumPackages []string `json:"yum_packages" yaml:"yum_packages"`

	Layers map[string][]string `json:"layers" yaml:"layers"`

	LightSetup map[string][]LightSetupTask `json:"light_setup" yaml:"light_setup"`
	HeavySetup *HeavySetup                 `json:"heavy_setup" yaml:"heavy_setup"`

	AptSources []string `json:"apt_sources" yaml:"apt_sources"`

	ImageName     string `json:"image_name" yaml:"image_name"`
	ContainerName string `json:"container_name" yaml:"container_name"`
	ImageTag      string `json:"image_tag" yaml:"image_tag"`

	InheritEnv       bool     `json:"inherit_env" yaml:"inherit_env"`
	InheritProxy     bool     `json:"inherit_proxy" yaml:"inherit_proxy"`
	InheritLocale    bool     `json:"inherit_locale" yaml:"inherit_locale"`
	InheritTimezone  bool     `json:"inherit_timezone" yaml:"inherit_timezone"`
	InheritCustomEnv []string `json:"inherit_custom_env" yaml:"inherit_custom_env"`
	ExcludeEnv       []string `json:"exclude_env" yaml:"exclude_env"`
}

// defaults mirrors parser.py's data.get(key, default) fallbacks.
func defaults() Declaration {
	return Declaration{
		User:            "app",
		BaseImage:       "ubuntu:22.04",
		ImageName:       "my-app",
		ContainerName:   "my-app-container",
		ImageTag:        "latest",
		InheritEnv:      true,
		InheritProxy:    true,
		InheritTimezone: true,
	}
}

// Parse dispatches on file extension, exactly like
// DeclarationParser.parse_yaml/parse_json: ".json" parses as JSON, anything
// else (".yml"/".yaml"/unknown) parses as YAML.
func Parse(path string, data []byte) (*Declaration, error) {
	decl := defaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &decl); err != nil {
			return nil, fmt.Errorf("parse json declaration: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &decl); err != nil {
			return nil, fmt.Errorf("parse yaml declaration: %w", err)
		}
	}

	if err := Validate(&decl); err != nil {
		return nil, err
	}
	return &decl, nil
}

// Validate enforces the invariants spec.md §3/§6 call out: unknown keys are
// tolerated (we don't use DisallowUnknownFields), but contradictory fields
// are not. Duplicate layer names are a warning, not a failure, and are left
// to the decomposer to detect.
func Validate(d *Declaration) error {
	if d.HeavySetup == nil {
		return nil
	}
	for _, si := range d.HeavySetup.ScriptInstalls {
		if si.File != "" && len(si.Commands) > 0 {
			name := si.Name
			if name == "" {
				name = "<unnamed>"
			}
			return fmt.Errorf("script_installs[%s] cannot specify both 'file' and 'commands'", name)
		}
	}
	return nil
}
