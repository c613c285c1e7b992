package runtime

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// sudoPrefix decides whether invocations of the runtime binary should be
// prefixed with "sudo -n -E", per spec.md §6's elevated-privilege rule.
//
// Grounded on original_source/utils.py:sudo_prefix -- NO_SUDO override, EUID
// check, "plain runtime reachable" probe, then "sudo -n true" probe.
func sudoPrefix(runtimeBin string, geteuid func() int, lookPath func(string) (string, error), canRun func(...string) bool) []string {
	if v := strings.TrimSpace(os.Getenv("NO_SUDO")); v == "1" || strings.EqualFold(v, "true") {
		return nil
	}

	if geteuid() == 0 {
		return nil
	}

	if _, err := lookPath(runtimeBin); err == nil && canRun(runtimeBin, "info") {
		return nil
	}

	if _, err := lookPath("sudo"); err == nil && canRun("sudo", "-n", "true") {
		return []string{"sudo", "-n", "-E"}
	}

	return nil
}

func defaultCanRun(args ...string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
