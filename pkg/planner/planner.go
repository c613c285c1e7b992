// Package planner implements the reuse planner: scoring candidate images by
// set intersection against a target dependency set, selecting the optimal
// base, and emitting the residual build plan.
//
// Grounded on original_source/reuse.py:LayerReuseManager.find_optimal_base,
// the exact scoring formula and complete-match bonus reproduced verbatim.
package planner

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/inventory"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
)

// CleanupDescriptor describes extras a chosen base carries beyond the
// target set, grouped by manager prefix. Only package-manager extras are
// ever auto-removed; script extras are reported, never rolled back.
type CleanupDescriptor struct {
	Manager string // "apt", "yum", "pip", "script"
	Names   []string
}

// Plan is the output of planning: the chosen base, what's reused, the
// ordered residual layers to build, and any cleanup to run first.
type Plan struct {
	BaseImage      string
	ReusedNames    map[string]bool
	LayersToBuild  []layer.Layer
	Cleanup        []CleanupDescriptor
	Intersection   []string
	Missing        []string
	Extra          []string
}

// score implements spec.md §4.D's formula exactly.
func score(intersection, missing, extra int) float64 {
	s := 100*float64(intersection) - 50*float64(missing) - 0.01*float64(extra)
	if missing == 0 {
		s += 10000
	}
	return s
}

// targetSet builds T = {dep_item(L) : L in layers, L.type in {APT,YUM,PIP,SCRIPT}}
// along with a dependency-item->layer map for residual-layer lookups.
func targetSet(layers []layer.Layer) (items map[string]bool, byItem map[string]layer.Layer) {
	items = map[string]bool{}
	byItem = map[string]layer.Layer{}
	for _, l := range layers {
		switch l.Type {
		case layer.Apt, layer.Yum, layer.Pip, layer.Script:
			if item, ok := l.DependencyItem(); ok {
				items[item] = true
				byItem[item] = l
			}
		}
	}
	return items, byItem
}

// Plan selects the best candidate and emits the residual build plan,
// exactly as spec.md §4.D describes. declaredBase is the declaration's
// base_image, used as a fallback when no candidate has any intersection.
func Plan(layers []layer.Layer, candidates []inventory.Candidate, declaredBase string) Plan {
	target, _ := targetSet(layers)

	var best inventory.Candidate
	bestScore := -1.0
	haveBest := false
	var bestIntersection, bestMissing, bestExtra []string

	for _, c := range candidates {
		cset := toSet(c.Items)
		intersection := setIntersect(target, cset)
		missing := setDiffKeys(target, cset)
		extra := setDiffKeys(cset, target)

		s := score(len(intersection), len(missing), len(extra))
		if !haveBest || s > bestScore {
			haveBest = true
			bestScore = s
			best = c
			bestIntersection = intersection
			bestMissing = missing
			bestExtra = extra
		}
	}

	if !haveBest || len(bestIntersection) == 0 {
		// No candidate at all, or none shares anything with the target:
		// fall back to the declared base, build everything non-BASE.
		return Plan{
			BaseImage:     declaredBase,
			ReusedNames:   map[string]bool{},
			LayersToBuild: nonBaseLayers(layers),
			Intersection:  nil,
			Missing:       sortedKeysOfSet(target),
			Extra:         nil,
		}
	}

	intersectionSet := toSet(bestIntersection)
	reusedNames := map[string]bool{}
	for _, l := range layers {
		item, ok := l.DependencyItem()
		if ok && intersectionSet[item] {
			reusedNames[l.Name] = true
		}
	}

	// Generic residual filter, §4.D: CONFIG always rebuilds; everything
	// else rebuilds unless its dependency item is in the intersection.
	// Maintenance layers (apt_update/yum_makecache/apt_sources) are never
	// carried through here -- they're re-derived by the refresh-injection
	// rule below, conditioned on whether the chosen base actually differs
	// from the declared one.
	var normalResidual []layer.Layer
	var aptSources *layer.Layer
	for i, l := range layers {
		if l.Type == layer.Base {
			continue
		}
		if l.Name == "apt_sources" {
			aptSources = &layers[i]
			continue
		}
		if layer.IsMaintenanceName(l.Name) {
			continue
		}
		item, ok := l.DependencyItem()
		if l.Type == layer.Config || !ok || !intersectionSet[item] {
			normalResidual = append(normalResidual, l)
		}
	}

	var refreshLayers []layer.Layer
	if best.Ref != declaredBase {
		if containsType(normalResidual, layer.Apt) {
			if aptSources != nil {
				refreshLayers = append(refreshLayers, *aptSources)
			}
			refreshLayers = append(refreshLayers, layer.Layer{Name: "apt_refresh", Type: layer.Apt, Content: "apt-get update"})
		}
		if containsType(normalResidual, layer.Yum) {
			refreshLayers = append(refreshLayers, layer.Layer{Name: "yum_refresh", Type: layer.Yum, Content: "yum makecache"})
		}
	}

	cleanup := groupCleanup(bestExtra)
	var cleanupLayers []layer.Layer
	for _, cd := range cleanup {
		if cd.Manager == "script" {
			continue // extras that are scripts are reported, never auto-removed
		}
		cleanupLayers = append(cleanupLayers, cleanupLayer(cd))
	}

	// I9: cleanup precedes everything else; refresh follows cleanup and
	// precedes the normal residual it primes.
	residual := append(append(cleanupLayers, refreshLayers...), normalResidual...)

	return Plan{
		BaseImage:     best.Ref,
		ReusedNames:   reusedNames,
		LayersToBuild: residual,
		Cleanup:       cleanup,
		Intersection:  bestIntersection,
		Missing:       bestMissing,
		Extra:         bestExtra,
	}
}

func containsType(layers []layer.Layer, t layer.Type) bool {
	for _, l := range layers {
		if l.Type == t {
			return true
		}
	}
	return false
}

func nonBaseLayers(layers []layer.Layer) []layer.Layer {
	var out []layer.Layer
	for _, l := range layers {
		if l.Type != layer.Base {
			out = append(out, l)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func setIntersect(a, b map[string]bool) []string {
	var keys []string
	for k := range a {
		keys = append(keys, k)
	}
	return lo.Intersect(keys, keysOf(b))
}

func setDiffKeys(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedKeysOfSet(m map[string]bool) []string {
	out := keysOf(m)
	sort.Strings(out)
	return out
}

// groupCleanup groups extra dependency items by their manager prefix,
// producing one CleanupDescriptor per manager with items present.
func groupCleanup(extra []string) []CleanupDescriptor {
	byManager := map[string][]string{}
	for _, item := range extra {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			continue
		}
		byManager[parts[0]] = append(byManager[parts[0]], parts[1])
	}

	var out []CleanupDescriptor
	for _, mgr := range []string{"apt", "yum", "pip", "script"} {
		names, ok := byManager[mgr]
		if !ok {
			continue
		}
		sort.Strings(names)
		out = append(out, CleanupDescriptor{Manager: mgr, Names: names})
	}
	return out
}

// cleanupLayer renders one manager's cleanup descriptor as a SCRIPT layer,
// the removal command matching spec.md scenario 3 exactly for apt.
func cleanupLayer(cd CleanupDescriptor) layer.Layer {
	joined := strings.Join(cd.Names, " ")
	var body string
	switch cd.Manager {
	case "apt":
		body = "apt-get purge -y " + joined + " || true && apt-get autoremove -y || true"
	case "yum":
		body = "yum remove -y " + joined + " || true"
	case "pip":
		body = "python3 -m pip uninstall -y " + joined + " || true"
	}
	return layer.Layer{
		Name:    cd.Manager + "_" + strings.Join(cd.Names, "_") + "_cleanup_remove",
		Type:    layer.Script,
		Content: body,
	}
}
