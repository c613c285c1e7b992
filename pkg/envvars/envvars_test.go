package envvars

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractProxyAndExcludesPath(t *testing.T) {
	environ := []string{"HTTP_PROXY=http://proxy:8080", "PATH=/usr/bin", "HOME=/root"}
	got := Extract(Config{InheritProxy: true}, environ)
	assert.Equal(t, map[string]string{"HTTP_PROXY": "http://proxy:8080"}, got)
}

func TestExtractCustomPattern(t *testing.T) {
	environ := []string{"MY_APP_FOO=1", "MY_APP_BAR=2", "OTHER=3"}
	got := Extract(Config{InheritCustom: []string{"MY_APP_*"}}, environ)
	assert.Equal(t, map[string]string{"MY_APP_FOO": "1", "MY_APP_BAR": "2"}, got)
}

func TestExtractCustomExactMatch(t *testing.T) {
	environ := []string{"SPECIFIC_VAR=yes", "OTHER=no"}
	got := Extract(Config{InheritCustom: []string{"SPECIFIC_VAR"}}, environ)
	assert.Equal(t, map[string]string{"SPECIFIC_VAR": "yes"}, got)
}

func TestExtractExcludeVarsOverridesCustom(t *testing.T) {
	environ := []string{"SECRET=shh"}
	got := Extract(Config{InheritCustom: []string{"SECRET"}, ExcludeVars: []string{"SECRET"}}, environ)
	assert.Empty(t, got)
}

func TestExtractLocaleAndTimezone(t *testing.T) {
	environ := []string{"LANG=en_US.UTF-8", "TZ=UTC", "PS1=$ "}
	got := Extract(Config{InheritLocale: true, InheritTimezone: true}, environ)
	assert.Equal(t, map[string]string{"LANG": "en_US.UTF-8", "TZ": "UTC"}, got)
}
