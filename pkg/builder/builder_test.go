package builder

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/layer"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

// recordingRunner returns a Runner whose every invocation succeeds
// trivially (via the `true` binary) while recording the argv of each call.
func recordingRunner(t *testing.T) (*runtime.Runner, *[][]string) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	var mu sync.Mutex
	var calls [][]string

	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()
		return exec.Command("true")
	})
	return r, &calls
}

func TestBuildLayerAptInstallSequence(t *testing.T) {
	r, calls := recordingRunner(t)
	b := New(logrus.NewEntry(logrus.New()), r, t.TempDir(), false)

	l := layer.Layer{Name: "curl", Type: layer.Apt, Content: "curl"}
	tag, err := b.BuildLayer(context.Background(), l, "ubuntu:22.04", "ubuntu__app:22.04__layer-apt-curl-abcd1234", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ubuntu__app:22.04__layer-apt-curl-abcd1234", tag)

	joined := flatten(*calls)
	assert.Contains(t, joined, "create")
	assert.Contains(t, joined, "start")
	assert.Contains(t, joined, "exec")
	assert.Contains(t, joined, "export")
	assert.Contains(t, joined, "import")
}

func TestBuildLayerScriptFileDirective(t *testing.T) {
	dir := t.TempDir()
	scriptPath := dir + "/setup.sh"
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/bash\necho hi\n"), 0o755))

	r, _ := recordingRunner(t)
	b := New(logrus.NewEntry(logrus.New()), r, dir, false)

	l := layer.Layer{Name: "bootstrap", Type: layer.Script, Content: "file:setup.sh"}
	_, err := b.BuildLayer(context.Background(), l, "ubuntu:22.04", "ubuntu__app:22.04__layer-script-bootstrap-abcd1234", nil, nil)
	require.NoError(t, err)
}

func TestBuildLayerFailureRetainsContainerWhenConfigured(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		if len(args) > 0 && args[0] == "exec" {
			return exec.Command("false")
		}
		return exec.Command("true")
	})

	b := New(log, r, t.TempDir(), true)
	l := layer.Layer{Name: "badpkg", Type: layer.Apt, Content: "doesnotexist"}
	_, err := b.BuildLayer(context.Background(), l, "ubuntu:22.04", "some:tag", nil, nil)
	require.Error(t, err)
	assert.True(t, runtime.HasCode(err, runtime.BuilderError))
	assert.NotEmpty(t, b.LastFailedCmd)
}

func TestCommandsForAptMaintenanceLayerSkipsInstall(t *testing.T) {
	r, _ := recordingRunner(t)
	b := New(logrus.NewEntry(logrus.New()), r, t.TempDir(), false)

	l := layer.Layer{Name: "apt_update", Type: layer.Apt, Content: "apt-get update"}
	cmds, err := b.commandsFor(context.Background(), l, "irrelevant")
	require.NoError(t, err)
	for _, c := range cmds {
		assert.NotContains(t, c, "apt-get install")
	}
	assert.Contains(t, cmds, "apt-get update")
}

func TestCommandsForAptRefreshMaintenanceLayerSkipsInstall(t *testing.T) {
	r, _ := recordingRunner(t)
	b := New(logrus.NewEntry(logrus.New()), r, t.TempDir(), false)

	l := layer.Layer{Name: "apt_refresh", Type: layer.Apt, Content: "apt-get update"}
	cmds, err := b.commandsFor(context.Background(), l, "irrelevant")
	require.NoError(t, err)
	for _, c := range cmds {
		assert.NotContains(t, c, "apt-get install")
	}
}

func flatten(calls [][]string) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c...)
	}
	return out
}
