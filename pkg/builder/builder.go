// Package builder implements the Container Layer Builder: for one residual
// layer, create a container from the current parent image, apply file
// copies, exec the layer's commands, and flatten the result into a single
// new tagged image via export+import.
//
// Grounded on original_source/container_layer_builder.py's
// ContainerLayerBuilder.build_layer, adapted so that flattening is
// mandatory (spec.md §4.E step 4: "not a fallback") rather than a fallback
// path taken only when `commit` hits a layer-depth limit.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

var idleCmd = []string{"bash", "-lc", "while sleep 3600; do :; done"}

// Builder builds one residual layer at a time.
type Builder struct {
	Log               *logrus.Entry
	Runtime           *runtime.Runner
	ConfigDir         string // base dir that relative copy sources resolve against
	PreserveOnFailure bool

	// LastContainerName/LastFailedCmd surface manual-reproduction hints on
	// failure, per spec.md §4.E's closing paragraph.
	LastContainerName string
	LastFailedCmd     string
}

func New(log *logrus.Entry, r *runtime.Runner, configDir string, preserveOnFailure bool) *Builder {
	return &Builder{Log: log, Runtime: r, ConfigDir: configDir, PreserveOnFailure: preserveOnFailure}
}

func containerName(layerName string) string {
	safe := layer.Slugify(layerName)
	return fmt.Sprintf("depimg_%s_%s", safe, uuid.New().String()[:8])
}

// BuildLayer builds l on top of parentImage, producing a flattened image
// tagged targetTag. labelChanges are `--change "LABEL k=v ..."` directives
// applied during import (empty for ordinary layers; non-empty only for the
// orchestrator's final label-only layer).
func (b *Builder) BuildLayer(ctx context.Context, l layer.Layer, parentImage, targetTag string, env map[string]string, labelChanges []string) (string, error) {
	name := containerName(l.Name)
	b.LastContainerName = name

	cidFile, err := os.CreateTemp("", "depimg-cid-*")
	if err != nil {
		return "", runtime.NewError(runtime.BuilderError, "create cidfile: %v", err)
	}
	cidPath := cidFile.Name()
	cidFile.Close()
	os.Remove(cidPath) // runtime must create it fresh
	defer os.Remove(cidPath)

	if err := b.Runtime.Create(ctx, parentImage, name, cidPath, env, idleCmd); err != nil {
		return "", err
	}

	succeeded := false
	defer func() {
		_ = b.Runtime.Stop(ctx, name)
		if succeeded || !b.PreserveOnFailure {
			_ = b.Runtime.RemoveContainer(ctx, name)
		}
		// On failure with PreserveOnFailure set, the container is retained
		// so the operator can start it, exec a shell, and re-run LastFailedCmd.
	}()

	if err := b.applyCopies(ctx, l, name); err != nil {
		return "", err
	}

	if err := b.Runtime.Start(ctx, name); err != nil {
		return "", err
	}

	cmds, err := b.commandsFor(ctx, l, name)
	if err != nil {
		return "", err
	}

	if len(cmds) > 0 {
		cmds[0] = "set -e; " + cmds[0]
		for i, cmd := range cmds {
			if err := b.Runtime.Exec(ctx, name, env, cmd); err != nil {
				b.LastFailedCmd = cmd
				return "", runtime.NewError(runtime.BuilderError, "layer %s: command #%d failed in container %s: %s: %v", l.Name, i+1, name, cmd, err)
			}
		}
	}

	if err := b.Runtime.Stop(ctx, name); err != nil {
		return "", err
	}

	tarFile, err := os.CreateTemp("", "depimg-*.tar")
	if err != nil {
		return "", runtime.NewError(runtime.BuilderError, "create export tarfile: %v", err)
	}
	tarPath := tarFile.Name()
	tarFile.Close()
	defer os.Remove(tarPath)

	if err := b.Runtime.Export(ctx, name, tarPath); err != nil {
		return "", err
	}
	if err := b.Runtime.Import(ctx, tarPath, labelChanges, targetTag); err != nil {
		return "", err
	}

	succeeded = true
	return targetTag, nil
}

// applyCopies handles the explicit l.Copies mappings, per spec.md §4.E step
// 2: pre-create the destination via an exec inside a *started* container,
// then stop and copy with the runtime's cp primitive. `file:<rel>`
// directives in the layer body are copied by scriptCommands, not here.
func (b *Builder) applyCopies(ctx context.Context, l layer.Layer, container string) error {
	for _, m := range l.Copies {
		if err := b.copyOne(ctx, container, m.Src, m.Dst); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) copyOne(ctx context.Context, container, src, dst string) error {
	srcAbs := src
	if !filepath.IsAbs(srcAbs) {
		srcAbs = filepath.Join(b.ConfigDir, src)
	}

	info, statErr := os.Stat(srcAbs)
	srcIsDir := statErr == nil && info.IsDir()

	if err := b.Runtime.Start(ctx, container); err != nil {
		return err
	}

	dst = strings.TrimSuffix(dst, "/")
	if srcIsDir {
		if err := b.Runtime.Exec(ctx, container, nil, "mkdir -p "+shellQuote(dst)); err != nil {
			return err
		}
	} else {
		parent := filepath.Dir(dst)
		if parent == "." || parent == "" {
			parent = "/"
		}
		if err := b.Runtime.Exec(ctx, container, nil, "mkdir -p "+shellQuote(parent)); err != nil {
			return err
		}
	}

	if err := b.Runtime.Stop(ctx, container); err != nil {
		return err
	}

	// Directory sources without a trailing '/' on dst are copied
	// contents-into-dst: cp src/. c:dst, not cp src c:dst/src_basename.
	cpSrc := srcAbs
	if srcIsDir {
		cpSrc = filepath.Join(srcAbs, ".")
	}
	return b.Runtime.CopyInto(ctx, cpSrc, container, dst)
}

// commandsFor computes the per-layer-type command list of spec.md §4.E step 3.
func (b *Builder) commandsFor(ctx context.Context, l layer.Layer, container string) ([]string, error) {
	switch l.Type {
	case layer.Apt:
		if layer.IsMaintenanceName(l.Name) {
			return []string{
				"export DEBIAN_FRONTEND=noninteractive",
				"apt-get update",
			}, nil
		}
		return []string{
			"export DEBIAN_FRONTEND=noninteractive",
			"apt-get update",
			"apt-get install -y " + shellQuote(l.Content),
			"rm -rf /var/lib/apt/lists/* || true",
		}, nil
	case layer.Yum:
		if layer.IsMaintenanceName(l.Name) {
			return []string{"yum makecache"}, nil
		}
		return []string{"yum install -y " + shellQuote(l.Content)}, nil
	case layer.Pip:
		return []string{"python3 -m pip install --no-cache-dir " + shellQuote(l.Content)}, nil
	case layer.Script, layer.Config:
		return b.scriptCommands(ctx, l, container)
	default:
		return nil, nil
	}
}

// scriptCommands splits the layer body into lines, dispatching file:<rel>
// directives to a copy-then-run step and joining the remaining inline
// shell lines into a single `&&`-chained exec.
func (b *Builder) scriptCommands(ctx context.Context, l layer.Layer, container string) ([]string, error) {
	var runlines []string
	for _, raw := range strings.Split(l.Content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "file:") {
			rel := strings.TrimSpace(strings.TrimPrefix(line, "file:"))
			base := filepath.Base(rel)
			dst := "/dependency_img_build/" + base
			srcAbs := rel
			if !filepath.IsAbs(srcAbs) {
				srcAbs = filepath.Join(b.ConfigDir, rel)
			}

			if err := b.Runtime.Exec(ctx, container, nil, "mkdir -p /dependency_img_build && chmod 0777 /dependency_img_build"); err != nil {
				return nil, err
			}
			if err := b.Runtime.Stop(ctx, container); err != nil {
				return nil, err
			}
			if err := b.Runtime.CopyInto(ctx, srcAbs, container, dst); err != nil {
				return nil, err
			}
			if err := b.Runtime.Start(ctx, container); err != nil {
				return nil, err
			}
			if err := b.Runtime.Exec(ctx, container, nil, "chmod +x "+shellQuote(dst)); err != nil {
				return nil, err
			}

			if strings.HasSuffix(base, ".py") {
				runlines = append(runlines, "python3 "+shellQuote(dst))
			} else {
				runlines = append(runlines, "/bin/bash "+shellQuote(dst))
			}
		} else {
			runlines = append(runlines, line)
		}
	}

	if len(runlines) == 0 {
		return nil, nil
	}
	return []string{strings.Join(runlines, " && ")}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
