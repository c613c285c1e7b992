package inventory

import (
	"context"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

func TestListFiltersByRepoAndTagPrefix(t *testing.T) {
	log := logrus.NewEntry(logrus.New())

	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		if len(args) > 0 && args[0] == "images" {
			return exec.Command("printf", "ubuntu__app:22.04__v1\\nubuntu__app:20.04__v1\\nother__app:22.04__v1\\n")
		}
		return exec.Command("printf", `{"io.teleinfra.imgdeps.items_b64":"WyJhcHQ6Y3VybCJd"}`)
	})

	inv := New(log, r)
	candidates, err := inv.List(context.Background(), "ubuntu__app", "22.04__")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ubuntu__app:22.04__v1", candidates[0].Ref)
	assert.Equal(t, []string{"apt:curl"}, candidates[0].Items)
}

func TestResolveOneFallsBackToLegacyFile(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	calls := 0
	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		calls++
		if len(args) > 0 && args[0] == "image" {
			return exec.Command("printf", "null")
		}
		return exec.Command("printf", "apt:curl\\napt:git\\n")
	})

	inv := New(log, r)
	items, err := inv.resolveOne(context.Background(), "ubuntu:22.04")
	require.NoError(t, err)
	assert.Equal(t, []string{"apt:curl", "apt:git"}, items)
}

func TestDecodeItemsB64RoundTrip(t *testing.T) {
	items, err := decodeItemsB64("WyJhcHQ6Y3VybCIsImFwdDpnaXQiXQ==")
	require.NoError(t, err)
	assert.Equal(t, []string{"apt:curl", "apt:git"}, items)
}
