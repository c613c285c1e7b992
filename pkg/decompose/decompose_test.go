package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
)

func TestDecomposeEmptyDelta(t *testing.T) {
	decl := &declaration.Declaration{
		BaseImage: "ubuntu:22.04",
		HeavySetup: &declaration.HeavySetup{
			AptPackages: []string{"curl", "git"},
		},
	}

	layers := Decompose(decl)
	require.Len(t, layers, 4) // base, apt_update, curl, git
	assert.Equal(t, layer.Base, layers[0].Type)
	assert.Equal(t, "apt_update", layers[1].Name)
	assert.Equal(t, "curl", layers[2].Name)
	assert.Equal(t, "git", layers[3].Name)

	var items []string
	for _, l := range layers {
		if item, ok := l.DependencyItem(); ok {
			items = append(items, item)
		}
	}
	assert.ElementsMatch(t, []string{"apt:curl", "apt:git"}, items)
}

func TestDecomposeIsIdempotent(t *testing.T) {
	decl := &declaration.Declaration{
		BaseImage: "ubuntu:22.04",
		HeavySetup: &declaration.HeavySetup{
			AptPackages: []string{"curl", "git"},
			ScriptInstalls: []declaration.ScriptInstall{
				{Name: "bootstrap", Commands: []string{"echo a"}},
			},
		},
	}

	itemSet := func(layers []layer.Layer) map[string]bool {
		set := map[string]bool{}
		for _, l := range layers {
			if item, ok := l.DependencyItem(); ok {
				set[item] = true
			}
		}
		return set
	}

	first := itemSet(Decompose(decl))
	second := itemSet(Decompose(decl))
	assert.Equal(t, first, second)
}

func TestDecomposeAptSourcesAndScriptFileDirective(t *testing.T) {
	decl := &declaration.Declaration{
		BaseImage:  "ubuntu:22.04",
		AptSources: []string{"deb http://mirror/ubuntu jammy main"},
		HeavySetup: &declaration.HeavySetup{
			ScriptInstalls: []declaration.ScriptInstall{
				{Name: "bootstrap", File: "setup.sh", Copies: []string{"./local:/remote"}},
			},
		},
	}

	layers := Decompose(decl)
	require.Len(t, layers, 3) // base, apt_sources, bootstrap
	assert.Equal(t, "apt_sources", layers[1].Name)
	assert.Equal(t, "printf '%s\\n' 'deb http://mirror/ubuntu jammy main' > /etc/apt/sources.list && chmod 0644 /etc/apt/sources.list", layers[1].Content)
	assert.Equal(t, "bootstrap", layers[2].Name)
	assert.Equal(t, "file:setup.sh", layers[2].Content)
	require.Len(t, layers[2].Copies, 1)
	assert.Equal(t, "./local", layers[2].Copies[0].Src)
	assert.Equal(t, "/remote", layers[2].Copies[0].Dst)
}

func TestDecomposeConfigLayersAlwaysLast(t *testing.T) {
	decl := &declaration.Declaration{
		BaseImage: "ubuntu:22.04",
		HeavySetup: &declaration.HeavySetup{
			AptPackages: []string{"curl"},
		},
		LightSetup: map[string][]declaration.LightSetupTask{
			"misc": {{Name: "set-hostname", Commands: []string{"hostnamectl set-hostname x"}}},
		},
	}

	layers := Decompose(decl)
	last := layers[len(layers)-1]
	assert.Equal(t, layer.Config, last.Type)
	assert.Equal(t, "set-hostname", last.Name)
}

func TestDuplicateLayerNames(t *testing.T) {
	layers := []layer.Layer{
		{Name: "curl", Type: layer.Apt},
		{Name: "curl", Type: layer.Apt},
		{Name: "git", Type: layer.Apt},
	}
	assert.Equal(t, []string{"curl"}, DuplicateLayerNames(layers))
}
