package config

import (
	"os"
	"testing"

	yaml "github.com/jesseduffield/yaml"
)

func TestNewAppConfigLoadsDefaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	conf, err := NewAppConfig("depimg", "v1", "abc", "2026-01-01", "test", false, "/tmp/proj")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if conf.UserConfig.MaxInventoryWorkers != 8 {
		t.Fatalf("expected default MaxInventoryWorkers 8, got %d", conf.UserConfig.MaxInventoryWorkers)
	}
}

func TestWriteToUserConfigRoundTrips(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	conf, err := NewAppConfig("depimg", "v1", "abc", "2026-01-01", "test", false, "/tmp/proj")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	err = conf.WriteToUserConfig(func(uc *UserConfig) error {
		uc.Runtime = "podman"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	content, err := os.ReadFile(conf.ConfigFilename())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var sample UserConfig
	if err := yaml.Unmarshal(content, &sample); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if sample.Runtime != "podman" {
		t.Fatalf("expected runtime podman, got %q", sample.Runtime)
	}
}
