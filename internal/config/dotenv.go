package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// varRefRegex matches ${NAME} references inside .env values.
var varRefRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadDotEnv reads KEY=VALUE pairs from path.
// A missing file yields an empty map.
func loadDotEnv(path string, lookup func(string) (string, bool)) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDotEnv(data, lookup), nil
}

// parseDotEnv parses .env content. Blank lines, # comments and lines without
// '=' are ignored; surrounding quotes are stripped; ${NAME} is expanded from
// lookup first, then from keys defined earlier in the same file. Unresolved
// references are left verbatim.
func parseDotEnv(data []byte, lookup func(string) (string, bool)) map[string]string {
	values := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		value = varRefRegex.ReplaceAllStringFunc(value, func(ref string) string {
			name := varRefRegex.FindStringSubmatch(ref)[1]
			if v, ok := lookup(name); ok {
				return v
			}
			if v, ok := values[name]; ok {
				return v
			}
			return ref
		})

		if key != "" {
			values[key] = value
		}
	}

	return values
}
