// Package decompose turns a validated declaration into the ordered list of
// typed layers the rest of the pipeline operates on.
//
// Grounded on original_source/build_orchestrator.py:_parse_layers, which
// establishes the exact ordering rules reproduced here: BASE first, then an
// optional apt_sources script, then manager-refresh layers, then one layer
// per package, then one layer per script install, then CONFIG layers last.
package decompose

import (
	"sort"
	"strings"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
)

// Decompose applies the deterministic decomposition rules of spec.md §4.B.
func Decompose(decl *declaration.Declaration) []layer.Layer {
	var layers []layer.Layer

	layers = append(layers, layer.Layer{Name: "base", Type: layer.Base, Content: decl.BaseImage})

	if len(decl.AptSources) > 0 {
		layers = append(layers, layer.Layer{
			Name:    "apt_sources",
			Type:    layer.Script,
			Content: renderAptSourcesCommand(decl.AptSources),
		})
	}

	aptPkgs := collectAptPackages(decl)
	yumPkgs := collectYumPackages(decl)
	pipPkgs := collectPipPackages(decl)

	if len(aptPkgs) > 0 {
		layers = append(layers, layer.Layer{Name: "apt_update", Type: layer.Apt, Content: "apt-get update"})
	}
	if len(yumPkgs) > 0 {
		layers = append(layers, layer.Layer{Name: "yum_makecache", Type: layer.Yum, Content: "yum makecache"})
	}

	for _, pkg := range aptPkgs {
		layers = append(layers, layer.Layer{Name: layer.SanitizePackageName(pkg), Type: layer.Apt, Content: pkg})
	}
	for _, pkg := range yumPkgs {
		layers = append(layers, layer.Layer{Name: layer.SanitizePackageName(pkg), Type: layer.Yum, Content: pkg})
	}
	for _, pkg := range pipPkgs {
		layers = append(layers, layer.Layer{Name: layer.SanitizePackageName(pkg), Type: layer.Pip, Content: pkg})
	}

	if decl.HeavySetup != nil {
		for _, si := range decl.HeavySetup.ScriptInstalls {
			var body string
			if si.File != "" {
				body = "file:" + si.File
			} else {
				body = strings.Join(si.Commands, "\n")
			}
			var copies []layer.CopyMapping
			for _, c := range si.Copies {
				parts := strings.SplitN(c, ":", 2)
				if len(parts) == 2 {
					copies = append(copies, layer.CopyMapping{Src: parts[0], Dst: parts[1]})
				}
			}
			layers = append(layers, layer.Layer{
				Name:         si.Name,
				Type:         layer.Script,
				Content:      body,
				Copies:       copies,
				Dependencies: si.Dependencies,
			})
		}
	}

	for _, category := range sortedKeys(decl.LightSetup) {
		for _, task := range decl.LightSetup[category] {
			layers = append(layers, layer.Layer{
				Name:         task.Name,
				Type:         layer.Config,
				Content:      strings.Join(task.Commands, "\n"),
				Dependencies: task.Dependencies,
			})
		}
	}

	return layers
}

// renderAptSourcesCommand renders the shell command that writes sources to
// /etc/apt/sources.list, grounded verbatim on
// original_source/build_orchestrator.py:_render_apt_sources_commands.
func renderAptSourcesCommand(sources []string) string {
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = shellQuote(s)
	}
	return "printf '%s\\n' " + strings.Join(quoted, " ") + " > /etc/apt/sources.list && chmod 0644 /etc/apt/sources.list"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// collectAptPackages merges heavy_setup.apt_packages, the legacy top-level
// apt_packages, and layers.apt, in that order, preserving declaration order.
func collectAptPackages(decl *declaration.Declaration) []string {
	var pkgs []string
	if decl.HeavySetup != nil {
		pkgs = append(pkgs, decl.HeavySetup.AptPackages...)
	}
	pkgs = append(pkgs, decl.AptPackages...)
	pkgs = append(pkgs, decl.Layers["apt"]...)
	return pkgs
}

func collectYumPackages(decl *declaration.Declaration) []string {
	var pkgs []string
	if decl.HeavySetup != nil {
		pkgs = append(pkgs, decl.HeavySetup.YumPackages...)
	}
	pkgs = append(pkgs, decl.YumPackages...)
	pkgs = append(pkgs, decl.Layers["yum"]...)
	return pkgs
}

func collectPipPackages(decl *declaration.Declaration) []string {
	var pkgs []string
	if decl.HeavySetup != nil {
		pkgs = append(pkgs, decl.HeavySetup.PipPackages...)
	}
	pkgs = append(pkgs, decl.Layers["pip"]...)
	return pkgs
}

func sortedKeys(m map[string][]declaration.LightSetupTask) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DuplicateLayerNames reports layer names used more than once, for the
// warn-not-fail validation spec.md §6 calls for.
func DuplicateLayerNames(layers []layer.Layer) []string {
	seen := map[string]int{}
	for _, l := range layers {
		seen[l.Name]++
	}
	var dups []string
	for name, count := range seen {
		if count > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}
