// Package envvars extracts the subset of the operator's environment that
// should be inherited into a build container, per the declaration's
// environment-inheritance flags.
//
// Grounded on original_source/env_manager.py's EnvironmentManager: the same
// proxy/locale/timezone variable sets, the same custom-pattern and
// exclude-list handling, ported from Python dict comprehensions to Go maps
// and a compiled regexp for glob-style patterns.
package envvars

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

// Config mirrors the declaration's inheritance flags (EnvVarConfig in the
// original).
type Config struct {
	InheritProxy    bool
	InheritLocale   bool
	InheritTimezone bool
	InheritCustom   []string
	ExcludeVars     []string
}

var proxyVars = set(
	"http_proxy", "https_proxy", "ftp_proxy", "socks_proxy",
	"HTTP_PROXY", "HTTPS_PROXY", "FTP_PROXY", "SOCKS_PROXY",
	"no_proxy", "NO_PROXY", "all_proxy", "ALL_PROXY",
)

var localeVars = set(
	"LANG", "LANGUAGE", "LC_ALL", "LC_CTYPE", "LC_NUMERIC",
	"LC_TIME", "LC_COLLATE", "LC_MONETARY", "LC_MESSAGES",
	"LC_PAPER", "LC_NAME", "LC_ADDRESS", "LC_TELEPHONE",
	"LC_MEASUREMENT", "LC_IDENTIFICATION",
)

var timezoneVars = set("TZ", "TIMEZONE")

var excludeVars = set(
	"PATH", "HOME", "USER", "USERNAME", "LOGNAME", "SHELL",
	"PWD", "OLDPWD", "SHLVL", "_", "PS1", "PS2", "PS4",
	"SSH_AUTH_SOCK", "SSH_AGENT_PID", "DISPLAY", "XAUTHORITY",
	"TERM", "TERMINFO", "COLUMNS", "LINES",
	"XDG_RUNTIME_DIR", "XDG_SESSION_ID", "XDG_SESSION_TYPE",
	"DBUS_SESSION_BUS_ADDRESS", "DESKTOP_SESSION",
)

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// Extract returns the environment variables that should be inherited,
// reading from environ (the output of os.Environ(), injected for testability).
func Extract(cfg Config, environ []string) map[string]string {
	all := map[string]string{}
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			all[kv[:i]] = kv[i+1:]
		}
	}

	extracted := map[string]string{}
	filter := func(names map[string]bool) {
		for k, v := range all {
			if names[k] {
				extracted[k] = v
			}
		}
	}

	if cfg.InheritProxy {
		filter(proxyVars)
	}
	if cfg.InheritLocale {
		filter(localeVars)
	}
	if cfg.InheritTimezone {
		filter(timezoneVars)
	}

	for _, pattern := range cfg.InheritCustom {
		if strings.ContainsAny(pattern, "*?") {
			re := globToRegexp(pattern)
			for k, v := range all {
				if re.MatchString(k) {
					extracted[k] = v
				}
			}
		} else if v, ok := all[pattern]; ok {
			extracted[pattern] = v
		}
	}

	exclude := map[string]bool{}
	for k := range excludeVars {
		exclude[k] = true
	}
	for _, k := range cfg.ExcludeVars {
		exclude[k] = true
	}
	for k := range extracted {
		if exclude[k] {
			delete(extracted, k)
		}
	}

	return extracted
}

func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.MustCompile(b.String())
}

// ExtractFromProcess is Extract(cfg, os.Environ()), the normal entrypoint.
func ExtractFromProcess(cfg Config) map[string]string {
	return Extract(cfg, os.Environ())
}

// SortedKeys returns the keys of an extracted env map in sorted order, for
// deterministic -e KEY=VALUE argument ordering.
func SortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
