// control/file.go
// Author: momentics <momentics@gmail.com>
//
// Reader for "name = value" configuration files. One setting per line; the
// value runs to the end of the line with surrounding whitespace trimmed.
// Blank lines, lines starting with '#' and lines without a value are skipped.

package control

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Parse reads settings from r. Later lines override earlier ones.
func Parse(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		end := strings.IndexFunc(line, func(r rune) bool { return r == '=' || unicode.IsSpace(r) })
		if end <= 0 {
			continue
		}
		name := line[:end]
		rest := strings.TrimLeftFunc(line[end:], unicode.IsSpace)
		if !strings.HasPrefix(rest, "=") {
			continue
		}
		value := strings.TrimSpace(rest[1:])
		if value == "" {
			continue
		}
		out[name] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return out, nil
}

// LoadFile parses the file at path.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
