package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/builder"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/checksum"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/inventory"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

func fakeDecl() *declaration.Declaration {
	return &declaration.Declaration{
		BaseImage: "ubuntu:22.04",
		ImageName: "app",
		ImageTag:  "v1",
		HeavySetup: &declaration.HeavySetup{
			AptPackages: []string{"curl"},
		},
	}
}

// recordingEnv builds a Runner whose commands all succeed trivially and
// records every argv, mirroring builder_test.go's recordingRunner.
func recordingEnv(t *testing.T) (*runtime.Runner, *[][]string) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	var mu sync.Mutex
	var calls [][]string

	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()

		joined := strings.Join(args, " ")
		if strings.HasPrefix(joined, "images ") {
			return exec.Command("printf", "")
		}
		return exec.Command("true")
	})
	return r, &calls
}

func newTestOrchestrator(t *testing.T, workDir string) (*Orchestrator, *[][]string) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	r, calls := recordingEnv(t)
	inv := inventory.New(log, r)
	b := builder.New(log, r, workDir, false)
	return New(log, r, inv, b, workDir), calls
}

func TestBuildChecksumShortCircuit(t *testing.T) {
	dir := t.TempDir()
	o, calls := newTestOrchestrator(t, dir)
	decl := fakeDecl()

	sum := checksum.Compute(checksum.Canonicalize(decl))
	sidecar := checksum.SidecarPath(dir, decl.ImageName, decl.ImageTag)
	require.NoError(t, checksum.Write(sidecar, sum))

	err := o.Build(context.Background(), decl, false)
	require.NoError(t, err)
	assert.Equal(t, StateChecksumMatch, o.State())
	assert.Empty(t, *calls, "no runtime commands should run on checksum short-circuit")
}

func TestBuildForceRebuildIgnoresChecksum(t *testing.T) {
	dir := t.TempDir()
	o, calls := newTestOrchestrator(t, dir)
	decl := fakeDecl()

	sum := checksum.Compute(checksum.Canonicalize(decl))
	sidecar := checksum.SidecarPath(dir, decl.ImageName, decl.ImageTag)
	require.NoError(t, checksum.Write(sidecar, sum))

	err := o.Build(context.Background(), decl, true)
	require.NoError(t, err)
	assert.Equal(t, StateTagged, o.State())
	assert.NotEmpty(t, *calls)
}

func TestBuildFreshDeclarationReachesTagged(t *testing.T) {
	dir := t.TempDir()
	o, calls := newTestOrchestrator(t, dir)
	decl := fakeDecl()

	err := o.Build(context.Background(), decl, false)
	require.NoError(t, err)
	assert.Equal(t, StateTagged, o.State())

	joined := flattenArgs(*calls)
	assert.Contains(t, joined, "import")
	assert.Contains(t, joined, "tag")

	newSum, ok := checksum.Read(checksum.SidecarPath(dir, decl.ImageName, decl.ImageTag))
	require.True(t, ok)
	assert.Equal(t, checksum.Compute(checksum.Canonicalize(decl)), newSum)
}

func TestBuildAbortsAndDeletesPoisonedReusedBaseOnFailure(t *testing.T) {
	dir := t.TempDir()
	log := logrus.NewEntry(logrus.New())

	var mu sync.Mutex
	var calls [][]string
	r := runtime.NewTestRunner(log, "docker", func(name string, args ...string) *exec.Cmd {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()

		joined := strings.Join(args, " ")
		switch {
		case strings.HasPrefix(joined, "images "):
			// One candidate image sharing the target's curl dependency,
			// forcing the planner to reuse it as the base instead of
			// declaredBase, so a later build failure should poison it.
			return exec.Command("printf", "ubuntu__app:22.04__layer-apt-curl-deadbeef\n")
		case joined == "image inspect ubuntu__app:22.04__layer-apt-curl-deadbeef --format {{json .Config.Labels}}":
			return exec.Command("printf", `{"io.teleinfra.imgdeps.items_b64":"WyJhcHQ6Y3VybCJd"}`)
		case len(args) > 0 && args[0] == "exec":
			return exec.Command("false")
		default:
			return exec.Command("true")
		}
	})

	inv := inventory.New(log, r)
	b := builder.New(log, r, dir, false)
	o := New(log, r, inv, b, dir)

	decl := &declaration.Declaration{
		BaseImage: "ubuntu:22.04",
		ImageName: "app",
		ImageTag:  "v1",
		HeavySetup: &declaration.HeavySetup{
			AptPackages: []string{"curl", "git"},
		},
	}

	err := o.Build(context.Background(), decl, false)
	require.Error(t, err)
	assert.Equal(t, StateAborted, o.State())

	joined := flattenArgs(calls)
	assert.Contains(t, joined, "rmi")
}

func flattenArgs(calls [][]string) string {
	var b strings.Builder
	for _, c := range calls {
		b.WriteString(strings.Join(c, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
