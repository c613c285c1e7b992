// Package orchestrator drives the full pipeline: checksum short-circuit,
// decompose, plan, build residual layers, embed final metadata, tag.
//
// Grounded on original_source/build_orchestrator.py's
// BuildOrchestrator._build_layered, the authoritative build algorithm per
// spec.md §9 (the label-based-metadata, container-commit-builder revision,
// not the earlier Dockerfile-generating variants).
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/builder"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/checksum"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/decompose"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/envvars"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/inventory"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/planner"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

const labelNamespace = "io.teleinfra.imgdeps"

// State is one point in the per-build state machine of spec.md §4.F.
type State string

const (
	StateInit          State = "INIT"
	StateChecksumMatch State = "CHECKSUM_MATCH"
	StateDecomposed    State = "DECOMPOSED"
	StatePlanned       State = "PLANNED"
	StateBuilding      State = "BUILDING"
	StateFinalized     State = "FINALIZED"
	StateTagged        State = "TAGGED"
	StateAborted       State = "ABORTED"
)

// Orchestrator wires the Decomposer, Inventory, Planner, and Builder into
// the single build() entry point.
type Orchestrator struct {
	Log       *logrus.Entry
	Runtime   *runtime.Runner
	Inventory *inventory.Inventory
	Builder   *builder.Builder

	// WorkDir holds the sidecar checksum files.
	WorkDir string

	// stateMu protects State against concurrent readers (a status
	// endpoint, a signal handler) while Build runs in its own goroutine.
	stateMu deadlock.Mutex
	state   State
}

func New(log *logrus.Entry, r *runtime.Runner, inv *inventory.Inventory, b *builder.Builder, workDir string) *Orchestrator {
	return &Orchestrator{Log: log, Runtime: r, Inventory: inv, Builder: b, WorkDir: workDir, state: StateInit}
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
	o.Log.WithField("state", s).Debug("orchestrator state transition")
}

// State returns the current state, safe to call from another goroutine.
func (o *Orchestrator) State() State {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

// Build runs one build to completion, implementing spec.md §4.F's
// algorithm. It returns nil on success (including checksum short-circuit)
// and a non-nil error on any failure path; there is no partial-success
// result.
func (o *Orchestrator) Build(ctx context.Context, decl *declaration.Declaration, forceRebuild bool) error {
	o.setState(StateInit)

	items := checksum.Canonicalize(decl)
	sum := checksum.Compute(items)
	sidecarPath := checksum.SidecarPath(o.WorkDir, decl.ImageName, decl.ImageTag)

	if !forceRebuild {
		if prior, ok := checksum.Read(sidecarPath); ok && prior == sum {
			o.setState(StateChecksumMatch)
			o.Log.WithField("image", decl.ImageName).Info("checksum unchanged, short-circuiting build")
			return nil
		}
	}

	layers := decompose.Decompose(decl)
	if dups := decompose.DuplicateLayerNames(layers); len(dups) > 0 {
		o.Log.WithField("layers", dups).Warn("duplicate layer names in declaration")
	}
	o.setState(StateDecomposed)

	preferredRepo := layer.PreferredRepo(decl.BaseImage, decl.ImageName)
	requiredTagPrefix := layer.RequiredTagPrefix(decl.BaseImage)

	var plan planner.Plan
	if forceRebuild {
		plan = planner.Plan(layers, nil, decl.BaseImage)
	} else {
		candidates, err := o.Inventory.List(ctx, preferredRepo, requiredTagPrefix)
		if err != nil {
			return err
		}
		plan = planner.Plan(layers, candidates, decl.BaseImage)
	}
	o.setState(StatePlanned)

	reusedBase := plan.BaseImage != decl.BaseImage

	env := envvars.ExtractFromProcess(envvars.Config{
		InheritProxy:    decl.InheritProxy,
		InheritLocale:   decl.InheritLocale,
		InheritTimezone: decl.InheritTimezone,
		InheritCustom:   decl.InheritCustomEnv,
		ExcludeVars:     decl.ExcludeEnv,
	})
	if !decl.InheritEnv {
		env = map[string]string{}
	}

	o.setState(StateBuilding)

	parent := plan.BaseImage
	baseTagSlug := layer.Slugify(secondPart(decl.BaseImage))
	var built []layer.Layer

	for _, l := range plan.LayersToBuild {
		tag := l.ImageTag(preferredRepo, baseTagSlug)
		newImage, err := o.Builder.BuildLayer(ctx, l, parent, tag, env, nil)
		if err != nil {
			o.setState(StateAborted)
			if reusedBase {
				if rmErr := o.Runtime.RemoveImage(ctx, plan.BaseImage); rmErr != nil {
					o.Log.WithError(rmErr).Warn("failed to delete poisoned reused base")
				}
			}
			return err
		}
		parent = newImage
		built = append(built, l)
	}

	finalItems := finalDependencySet(layers, plan, built)

	labelChanges, err := renderLabelChanges(finalItems)
	if err != nil {
		o.setState(StateAborted)
		return runtime.NewError(runtime.BuilderError, "render final labels: %v", err)
	}

	labelLayer := layer.Layer{Name: "embed_metadata", Type: layer.Config, Content: ":"}
	finalTag := layer.FinalTag(decl.BaseImage, decl.ImageName, decl.ImageTag)
	finalImage, err := o.Builder.BuildLayer(ctx, labelLayer, parent, finalTag, env, labelChanges)
	if err != nil {
		o.setState(StateAborted)
		if reusedBase {
			_ = o.Runtime.RemoveImage(ctx, plan.BaseImage)
		}
		return err
	}
	o.setState(StateFinalized)

	classicTag := layer.ClassicTag(decl.ImageName, decl.ImageTag)
	if err := o.Runtime.Tag(ctx, finalImage, classicTag); err != nil {
		o.setState(StateAborted)
		return err
	}
	o.setState(StateTagged)

	if err := checksum.Write(sidecarPath, sum); err != nil {
		return runtime.NewError(runtime.TagError, "write sidecar checksum: %v", err)
	}

	return nil
}

// finalDependencySet is {dep_item(L) : L in built ∪ reused, not maintenance/cleanup}.
// BASE is excluded, matching original_source/build_orchestrator.py:434's
// `if l.type == LayerType.BASE: continue` -- see DESIGN.md's Open Question
// decisions for why this follows the original over spec.md §8's
// scenario examples, which show "base:<image>" in the embedded labels.
func finalDependencySet(layers []layer.Layer, plan planner.Plan, built []layer.Layer) []string {
	set := map[string]bool{}

	for name := range plan.ReusedNames {
		for _, l := range layers {
			if l.Name == name {
				if item, ok := l.DependencyItem(); ok {
					set[item] = true
				}
			}
		}
	}
	for _, l := range built {
		if item, ok := l.DependencyItem(); ok {
			set[item] = true
		}
	}

	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// renderLabelChanges computes the `--change "LABEL k=v ..."` directive
// carrying the dependency-set metadata, per spec.md §3's label schema.
func renderLabelChanges(items []string) ([]string, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	b64 := base64.StdEncoding.EncodeToString(payload)
	cacheKey := checksum.Compute(items)
	created := time.Now().UTC().Format("20060102T150405Z")

	line := fmt.Sprintf("LABEL %s.version=1 %s.cache_key=%s %s.created=%s %s.items_b64=%s",
		labelNamespace, labelNamespace, cacheKey, labelNamespace, created, labelNamespace, b64)
	return []string{line}, nil
}

func secondPart(ref string) string {
	_, tag := layer.ParseRepoTag(ref)
	return tag
}
