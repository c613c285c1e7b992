// Package layer implements the atomic unit of image mutation: the Layer
// type, its content hash, its dependency-item identity, and the tag naming
// scheme used for both final and intermediate images.
//
// Grounded on original_source/config.py (the `Layer` dataclass and its
// `calculate_hash`/`get_image_tag` methods) and the naming-scheme pattern in
// other_examples/664e743d_dpvpro-deber__pkg-naming-naming.go.go.
package layer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Type is one of the six kinds of layer a declaration can decompose into.
type Type string

const (
	Base   Type = "BASE"
	Apt    Type = "APT"
	Yum    Type = "YUM"
	Pip    Type = "PIP"
	Script Type = "SCRIPT"
	Config Type = "CONFIG"
)

// CopyMapping is a single src:dst file-copy directive attached to a SCRIPT layer.
type CopyMapping struct {
	Src string
	Dst string
}

// Layer is an atomic unit of image mutation: one package install, one
// script, or one config task.
type Layer struct {
	Name         string
	Type         Type
	Content      string
	Copies       []CopyMapping
	Dependencies []string
}

// Hash returns the first 8 hex characters of sha256("type:name:content").
// It is a pure function of (Type, Name, Content) only -- I1.
func (l Layer) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", l.Type, l.Name, l.Content)))
	return hex.EncodeToString(sum[:])[:8]
}

// maintenanceNames never contribute a dependency item even though their type
// would otherwise qualify (APT/YUM layers used purely to refresh caches).
var maintenanceNames = map[string]bool{
	"apt_update":         true,
	"apt_refresh":        true,
	"yum_makecache":      true,
	"yum_refresh":        true,
	"apt_sources":        true,
}

func isCleanupName(name string) bool {
	return strings.HasSuffix(name, "_cleanup_remove")
}

// IsMaintenanceName reports whether name is one of the cache-refresh layer
// names the decomposer emits (apt_update, yum_makecache, apt_sources) or the
// planner emits (apt_refresh, yum_refresh). Maintenance layers never
// contribute a dependency item and are re-injected by the planner only when
// the chosen base differs from the declared one (§4.D), not carried through
// the generic residual filter.
func IsMaintenanceName(name string) bool {
	return maintenanceNames[name]
}

// DependencyItem returns the canonical "type:identity" string for this
// layer, and whether it participates in dependency-set algebra at all.
// CONFIG layers and maintenance/cleanup SCRIPT layers never do.
func (l Layer) DependencyItem() (string, bool) {
	switch l.Type {
	case Apt, Yum, Pip:
		if maintenanceNames[l.Name] {
			return "", false
		}
		return fmt.Sprintf("%s:%s", managerPrefix(l.Type), l.Content), true
	case Script:
		if maintenanceNames[l.Name] || isCleanupName(l.Name) {
			return "", false
		}
		return fmt.Sprintf("script:%s", l.Name), true
	default:
		return "", false
	}
}

func managerPrefix(t Type) string {
	switch t {
	case Apt:
		return "apt"
	case Yum:
		return "yum"
	case Pip:
		return "pip"
	default:
		return strings.ToLower(string(t))
	}
}

// ImageTag computes the intermediate per-layer tag:
// <repo>:<baseTagSlug>__layer-<type>-<name>-<hash>
func (l Layer) ImageTag(repo, baseTagSlug string) string {
	return fmt.Sprintf("%s:%s__layer-%s-%s-%s", repo, baseTagSlug, strings.ToLower(string(l.Type)), l.Name, l.Hash())
}

var nonSlugChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Slugify replaces every character outside [A-Za-z0-9._-] with '_'.
func Slugify(s string) string {
	return nonSlugChar.ReplaceAllString(s, "_")
}

// SanitizePackageName applies the package-name sanitization rule used when
// deriving a layer name from a package specifier: '-' -> '_', '+' -> "plus",
// '.' -> '_'.
func SanitizePackageName(spec string) string {
	r := strings.NewReplacer("-", "_", "+", "plus", ".", "_")
	return r.Replace(spec)
}
