// Package inventory enumerates candidate images from the runtime and
// resolves each one's dependency-item set, in parallel across a bounded
// worker pool.
//
// Grounded on original_source/reuse.py's _scan_all_docker_images/_image_exists
// for the enumeration and fallback-resolution order, and spec.md §5 for the
// worker-pool shape (default <=8 workers, commutative scoring downstream so
// result ordering across workers doesn't matter).
package inventory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

const (
	labelNamespace = "io.teleinfra.imgdeps"
	legacyItemsPath = "/img_dependency_items.json"
	defaultMaxWorkers = 8
)

// Candidate is one image in the local runtime store, with its resolved
// dependency-item set.
type Candidate struct {
	Ref   string
	Items []string
}

// Inventory enumerates and inspects candidate images.
type Inventory struct {
	Log        *logrus.Entry
	Runtime    *runtime.Runner
	MaxWorkers int
}

func New(log *logrus.Entry, r *runtime.Runner) *Inventory {
	return &Inventory{Log: log, Runtime: r, MaxWorkers: defaultMaxWorkers}
}

// List enumerates repo:tag references, optionally restricted to a preferred
// repository and to tags carrying a given prefix, and resolves each one's
// dependency set concurrently.
func (inv *Inventory) List(ctx context.Context, preferredRepo, requiredTagPrefix string) ([]Candidate, error) {
	refs, err := inv.Runtime.Images(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []string
	for _, ref := range refs {
		repo, tag := splitRepoTag(ref)
		if preferredRepo != "" && repo != preferredRepo {
			continue
		}
		if requiredTagPrefix != "" && !strings.HasPrefix(tag, requiredTagPrefix) {
			continue
		}
		filtered = append(filtered, ref)
	}

	return inv.resolveAll(ctx, filtered)
}

func splitRepoTag(ref string) (repo, tag string) {
	idx := strings.LastIndex(ref, ":")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}

func (inv *Inventory) resolveAll(ctx context.Context, refs []string) ([]Candidate, error) {
	workers := inv.MaxWorkers
	if workers <= 0 || workers > len(refs) {
		workers = len(refs)
	}
	if workers == 0 {
		return nil, nil
	}

	var mu deadlock.Mutex
	results := make([]Candidate, 0, len(refs))

	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	for _, ref := range refs {
		ref := ref
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			items, err := inv.resolveOne(gctx, ref)
			if err != nil {
				// InventoryError policy: treat as empty dependency set, continue.
				inv.Log.WithField("image", ref).WithError(err).Warn("inventory: treating candidate as empty dependency set")
				items = nil
			}
			mu.Lock()
			results = append(results, Candidate{Ref: ref, Items: items})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveOne implements the three-step fallback of spec.md §4.C.
func (inv *Inventory) resolveOne(ctx context.Context, ref string) ([]string, error) {
	labels, err := inv.Runtime.InspectLabels(ctx, ref)
	if err != nil {
		return nil, err
	}

	if b64, ok := labels[labelNamespace+".items_b64"]; ok && b64 != "" {
		return decodeItemsB64(b64)
	}
	if raw, ok := labels[labelNamespace+".items"]; ok && raw != "" {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items, nil
		}
	}

	// Legacy fallback: run the image with its entrypoint overridden to cat
	// a fixed in-image path.
	out, err := inv.Runtime.ReadFileFromImage(ctx, ref, legacyItemsPath)
	if err != nil {
		return nil, nil
	}
	return nonEmptyLines(out), nil
}

func decodeItemsB64(b64 string) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func nonEmptyLines(s string) []string {
	lines := strings.Split(s, "\n")
	return lo.Filter(lines, func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
}
