package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSeeds returns one URL per non-blank line of r. Lines starting with "#"
// are comments.
func ReadSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seeds: %w", err)
	}
	return seeds, nil
}

// ReadSeedFile is ReadSeeds on the file at path.
func ReadSeedFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()
	return ReadSeeds(f)
}
