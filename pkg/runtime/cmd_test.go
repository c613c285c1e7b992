package runtime

import (
	"context"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner() *Runner {
	log := logrus.NewEntry(logrus.New())
	return &Runner{Log: log, Bin: "docker", command: exec.Command}
}

func TestArgvNoSudo(t *testing.T) {
	r := testRunner()
	argv := r.Argv("images")
	assert.Equal(t, []string{"docker", "images"}, argv)
}

func TestArgvWithSudo(t *testing.T) {
	r := testRunner()
	r.sudo = []string{"sudo", "-n", "-E"}
	argv := r.Argv("images")
	assert.Equal(t, []string{"sudo", "-n", "-E", "docker", "images"}, argv)
}

func TestImagesFiltersDangling(t *testing.T) {
	r := testRunner()
	r.command = func(name string, args ...string) *exec.Cmd {
		return exec.Command("printf", "ubuntu:22.04\\nmy-app:<none>\\ncentos:8\\n")
	}
	refs, err := r.Images(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ubuntu:22.04", "centos:8"}, refs)
}

func TestInspectLabelsDecodesJSON(t *testing.T) {
	r := testRunner()
	r.command = func(name string, args ...string) *exec.Cmd {
		return exec.Command("printf", `{"io.teleinfra.imgdeps.version":"1"}`)
	}
	labels, err := r.InspectLabels(context.Background(), "ubuntu:22.04")
	require.NoError(t, err)
	assert.Equal(t, "1", labels["io.teleinfra.imgdeps.version"])
}

func TestInspectLabelsHandlesEmpty(t *testing.T) {
	r := testRunner()
	r.command = func(name string, args ...string) *exec.Cmd {
		return exec.Command("printf", "null")
	}
	labels, err := r.InspectLabels(context.Background(), "ubuntu:22.04")
	require.NoError(t, err)
	assert.Empty(t, labels)
}
