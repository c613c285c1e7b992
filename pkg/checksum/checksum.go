// Package checksum implements the incremental short-circuit: a canonical
// dependency-item list, its SHA-256, and the on-disk sidecar file that
// remembers the checksum of the last successful build for a given
// (image_name, image_tag).
//
// Grounded on spec.md §4.G/§6; the canonicalization rules mirror
// original_source/build_orchestrator.py's dependency collection, restricted
// to name-only identity for scripts per the script-identity policy (§9).
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
)

// Canonicalize builds the sorted, de-duplicated list of dependency items a
// declaration contributes, independent of script body content (I7).
func Canonicalize(decl *declaration.Declaration) []string {
	set := map[string]bool{"base:" + decl.BaseImage: true}

	add := func(prefix string, pkgs []string) {
		for _, pkg := range pkgs {
			set[prefix+":"+pkg] = true
		}
	}

	if decl.HeavySetup != nil {
		add("apt", decl.HeavySetup.AptPackages)
		add("yum", decl.HeavySetup.YumPackages)
		add("pip", decl.HeavySetup.PipPackages)
		for _, si := range decl.HeavySetup.ScriptInstalls {
			set["script:"+si.Name] = true
		}
	}
	add("apt", decl.AptPackages)
	add("yum", decl.YumPackages)
	add("apt", decl.Layers["apt"])
	add("yum", decl.Layers["yum"])
	add("pip", decl.Layers["pip"])

	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// Compute returns the SHA-256 hex digest of the newline-joined canonical
// item list (I6: depends only on the canonical list, not on ordering,
// duplicates, or whitespace of the input since Canonicalize already
// normalizes those away).
func Compute(items []string) string {
	sum := sha256.Sum256([]byte(strings.Join(items, "\n")))
	return hex.EncodeToString(sum[:])
}

// SidecarPath is img_dependency_<image_name>_<image_tag>.checksum in dir.
func SidecarPath(dir, imageName, imageTag string) string {
	return fmt.Sprintf("%s/img_dependency_%s_%s.checksum", dir, imageName, imageTag)
}

// Read returns the stored checksum, or "" with ok=false if the file is
// missing or unreadable -- treated as "no prior build".
func Read(path string) (sum string, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Write persists the checksum as one line of lowercase hex plus a newline.
func Write(path, sum string) error {
	return os.WriteFile(path, []byte(sum+"\n"), 0o644)
}
