package runtime

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSudoPrefixRootNeverSudo(t *testing.T) {
	prefix := sudoPrefix("docker", func() int { return 0 }, okLookPath, alwaysTrue)
	assert.Nil(t, prefix)
}

func TestSudoPrefixPlainRuntimeReachable(t *testing.T) {
	prefix := sudoPrefix("docker", func() int { return 1000 }, okLookPath, alwaysTrue)
	assert.Nil(t, prefix)
}

func TestSudoPrefixFallsBackToSudo(t *testing.T) {
	calls := map[string]bool{}
	canRun := func(args ...string) bool {
		calls[args[0]] = true
		return args[0] == "sudo"
	}
	prefix := sudoPrefix("docker", func() int { return 1000 }, okLookPath, canRun)
	assert.Equal(t, []string{"sudo", "-n", "-E"}, prefix)
}

func TestSudoPrefixHonorsNoSudoOverride(t *testing.T) {
	os.Setenv("NO_SUDO", "1")
	defer os.Unsetenv("NO_SUDO")
	prefix := sudoPrefix("docker", func() int { return 1000 }, okLookPath, func(...string) bool { return false })
	assert.Nil(t, prefix)
}

func okLookPath(string) (string, error) { return "/usr/bin/x", nil }
func alwaysTrue(...string) bool         { return true }
