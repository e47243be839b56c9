package evaluator

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadCache parses a CMakeCache.txt-style file: blank lines and lines
// starting with "#" or "//" are comments (a "//" line immediately above an
// entry is that entry's HELPSTRING), and entries are "KEY:TYPE=VALUE". An
// "-ADVANCED:INTERNAL=1" suffix on a key marks the base key advanced. This
// is the evaluator bridge's load-cache(path) operation (§4.I).
func LoadCache(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evaluator: load cache: %w", err)
	}
	defer f.Close()

	c := newCache(path)
	var pendingHelp string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			pendingHelp = ""
			continue
		case strings.HasPrefix(line, "//"):
			pendingHelp = strings.TrimSpace(strings.TrimPrefix(line, "//"))
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}

		key, typ, value, ok := parseCacheLine(line)
		if !ok {
			pendingHelp = ""
			continue
		}

		if base, ok := strings.CutSuffix(key, "-ADVANCED"); ok {
			if e := c.Entries[base]; e != nil {
				e.Properties["ADVANCED"] = value
			}
			pendingHelp = ""
			continue
		}

		c.set(key, value, ParseCacheEntryType(typ), pendingHelp)
		pendingHelp = ""
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("evaluator: load cache: %w", err)
	}

	c.Generator, _ = c.Get("CMAKE_GENERATOR")
	c.ExtraGenerator, _ = c.Get("CMAKE_EXTRA_GENERATOR")
	c.HomeDirectory, _ = c.Get("CMAKE_HOME_DIRECTORY")
	return c, nil
}

// parseCacheLine splits a "KEY:TYPE=VALUE" line.
func parseCacheLine(line string) (key, typ, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", "", false
	}
	eq := strings.IndexByte(line[colon+1:], '=')
	if eq < 0 {
		return "", "", "", false
	}
	eq += colon + 1
	return line[:colon], line[colon+1 : eq], line[eq+1:], true
}
