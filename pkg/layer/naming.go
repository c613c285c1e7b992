package layer

import "fmt"

// ParseRepoTag splits "repo:tag" into its two parts. A reference with no
// colon is treated as having an empty tag.
func ParseRepoTag(ref string) (repo, tag string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, ""
}

// FinalTag computes the canonical scheme tag for a finished build:
// <base_repo_slug>__<image_name>:<base_tag_slug>__<image_tag>
func FinalTag(baseImage, imageName, imageTag string) string {
	baseRepo, baseTag := ParseRepoTag(baseImage)
	return fmt.Sprintf("%s__%s:%s__%s", Slugify(baseRepo), Slugify(imageName), Slugify(baseTag), Slugify(imageTag))
}

// ClassicTag computes the convenience alias tag <image_name>:<image_tag>.
func ClassicTag(imageName, imageTag string) string {
	return fmt.Sprintf("%s:%s", imageName, imageTag)
}

// PreferredRepo computes the repo the planner should confine its reuse
// search to: <base_repo_slug>__<image_name>.
func PreferredRepo(baseImage, imageName string) string {
	baseRepo, _ := ParseRepoTag(baseImage)
	return fmt.Sprintf("%s__%s", Slugify(baseRepo), Slugify(imageName))
}

// RequiredTagPrefix computes the tag prefix candidates must carry to be
// considered part of the same base-image lineage: <base_tag_slug>__
func RequiredTagPrefix(baseImage string) string {
	_, baseTag := ParseRepoTag(baseImage)
	return Slugify(baseTag) + "__"
}
