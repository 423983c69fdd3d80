package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// LoadToken reads key from a line-oriented key=value file such as Pi-hole's
// setupVars.conf.
func LoadToken(path, key string) (string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return "", fmt.Errorf("config: load token file: %w", err)
	}
	sec := f.Section(ini.DefaultSection)
	if !sec.HasKey(key) {
		return "", fmt.Errorf("config: token file %s has no %s", path, key)
	}
	token := strings.TrimSpace(sec.Key(key).String())
	if token == "" {
		return "", fmt.Errorf("config: %s is empty in %s", key, path)
	}
	return token, nil
}
