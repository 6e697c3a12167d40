package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseKeyValue reads KEY=VALUE lines.
// Blank lines and lines starting with # are ignored. An inline # starts a
// comment only when the line has no double quotes. Surrounding quotes are
// removed from values.
func parseKeyValue(contents []byte) map[string]string {
	values := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "#") && !strings.Contains(line, `"`) {
			line = strings.TrimSpace(line[:strings.Index(line, "#")])
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		values[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}

	return values
}

// parseYAML reads a flat YAML mapping with the same keys as the KEY=VALUE form.
// Scalars of any type are converted to their string form.
func parseYAML(contents []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))

	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			values[key] = ""
		case string:
			values[key] = v
		case map[string]any, []any:
			return nil, fmt.Errorf("key %s: nested values are not supported", key)
		default:
			values[key] = fmt.Sprint(v)
		}
	}

	return values, nil
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}

	if strings.ContainsRune(`'"`, rune(v[0])) && strings.ContainsRune(`'"`, rune(v[len(v)-1])) {
		return v[1 : len(v)-1]
	}

	return v
}
