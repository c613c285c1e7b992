package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// InspectTimeout is the default timeout for inventory-style inspects
// (spec.md §5: "default 5-8s for inspects, no timeout for builds").
const InspectTimeout = 6 * time.Second

// Images lists every repo:tag in the local store, dropping dangling tags.
func (r *Runner) Images(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "images", "--format", "{{.Repository}}:{{.Tag}}")
	if err != nil {
		return nil, NewError(RuntimeUnavailable, "images: %v", err)
	}
	var refs []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":<none>") {
			continue
		}
		refs = append(refs, line)
	}
	return refs, nil
}

// InspectLabels reads an image's Config.Labels via `image inspect`.
func (r *Runner) InspectLabels(ctx context.Context, image string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, InspectTimeout)
	defer cancel()
	out, err := r.Run(ctx, "image", "inspect", image, "--format", "{{json .Config.Labels}}")
	if err != nil {
		return nil, NewError(InventoryError, "image inspect %s: %v", image, err)
	}
	labels := map[string]string{}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" || trimmed == "null" || trimmed == "map[]" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &labels); err != nil {
		return nil, NewError(InventoryError, "decode labels of %s: %v", image, err)
	}
	return labels, nil
}

// ReadFileFromImage runs a one-shot `run --rm --entrypoint cat` to read a
// fixed path inside the image -- the legacy metadata fallback (spec.md §4.C
// step 3).
func (r *Runner) ReadFileFromImage(ctx context.Context, image, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, InspectTimeout)
	defer cancel()
	out, err := r.Run(ctx, "run", "--rm", "--entrypoint", "/bin/cat", image, path)
	if err != nil {
		return "", NewError(InventoryError, "read %s from %s: %v", path, image, err)
	}
	return out, nil
}

// Create creates (without starting) an idle container from parent under name, passing env vars
// and capturing the container id via a cidfile (spec.md §4.E step 1).
func (r *Runner) Create(ctx context.Context, parent, name, cidFile string, env map[string]string, idleCmd []string) error {
	args := []string{"create", "--cidfile", cidFile, "--name", name}
	for _, k := range sortedEnvKeys(env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, env[k]))
	}
	args = append(args, parent)
	args = append(args, idleCmd...)
	if _, err := r.Run(ctx, args...); err != nil {
		return NewError(BuilderError, "create %s from %s: %v", name, parent, err)
	}
	return nil
}

func (r *Runner) Start(ctx context.Context, container string) error {
	if _, err := r.Run(ctx, "start", container); err != nil {
		return NewError(BuilderError, "start %s: %v", container, err)
	}
	return nil
}

func (r *Runner) Stop(ctx context.Context, container string) error {
	if _, err := r.Run(ctx, "stop", container); err != nil {
		return NewError(BuilderError, "stop %s: %v", container, err)
	}
	return nil
}

// CopyInto runs `cp src c:dst`.
func (r *Runner) CopyInto(ctx context.Context, src, container, dst string) error {
	if _, err := r.Run(ctx, "cp", src, fmt.Sprintf("%s:%s", container, dst)); err != nil {
		return NewError(BuilderError, "cp %s into %s:%s: %v", src, container, dst, err)
	}
	return nil
}

// CopyFrom runs `cp c:src dst`.
func (r *Runner) CopyFrom(ctx context.Context, container, src, dst string) error {
	if _, err := r.Run(ctx, "cp", fmt.Sprintf("%s:%s", container, src), dst); err != nil {
		return NewError(BuilderError, "cp %s:%s to %s: %v", container, src, dst, err)
	}
	return nil
}

// Exec runs a command inside a started container with an allocated TTY, so
// output streams live to the operator's terminal (spec.md §4.E step 3).
func (r *Runner) Exec(ctx context.Context, container string, env map[string]string, shellCmd string) error {
	args := []string{"exec", "-i", "-t"}
	for _, k := range sortedEnvKeys(env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, env[k]))
	}
	args = append(args, container, "/bin/bash", "-lc", shellCmd)
	if err := r.RunTTY(ctx, args...); err != nil {
		return NewError(BuilderError, "exec in %s: %s: %v", container, shellCmd, err)
	}
	return nil
}

// Export snapshots a container's filesystem to a tar file. Some runtimes
// refuse `-o` on certain filesystems; Export falls back to streaming stdout
// to the file.
func (r *Runner) Export(ctx context.Context, container, tarPath string) error {
	if _, err := r.Run(ctx, "export", "-o", tarPath, container); err == nil {
		return nil
	}
	return r.exportStreaming(ctx, container, tarPath)
}

func (r *Runner) exportStreaming(ctx context.Context, container, tarPath string) error {
	argv := r.Argv("export", container)
	out, err := streamToFile(ctx, argv, tarPath)
	if err != nil {
		return NewError(BuilderError, "export %s: %v (%s)", container, err, out)
	}
	return nil
}

// Import flattens a tar file into a single-layer image tagged at tag,
// attaching change directives (labels) in the process.
func (r *Runner) Import(ctx context.Context, tarPath string, changes []string, tag string) error {
	args := []string{"import"}
	for _, c := range changes {
		args = append(args, "--change", c)
	}
	args = append(args, tarPath, tag)
	if _, err := r.Run(ctx, args...); err != nil {
		return NewError(BuilderError, "import %s as %s: %v", tarPath, tag, err)
	}
	return nil
}

func (r *Runner) Tag(ctx context.Context, src, dst string) error {
	if _, err := r.Run(ctx, "tag", src, dst); err != nil {
		return NewError(TagError, "tag %s as %s: %v", src, dst, err)
	}
	return nil
}

// RemoveImage force-removes an image, used to delete a poisoned reused base
// after a failed build (spec.md §4.F).
func (r *Runner) RemoveImage(ctx context.Context, image string) error {
	if _, err := r.Run(ctx, "rmi", "-f", image); err != nil {
		return NewError(BuilderError, "rmi %s: %v", image, err)
	}
	return nil
}

// RemoveContainer force-removes a container, ignoring any error.
func (r *Runner) RemoveContainer(ctx context.Context, container string) error {
	_, _ = r.Run(ctx, "rm", "-f", container)
	return nil
}

func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	// deterministic argument order matters for reproducible command lines
	// in logs/tests, not for runtime semantics
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
