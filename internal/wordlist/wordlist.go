// Package wordlist provides the default subdomain label list and a loader
// for user-supplied lists.
package wordlist

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed subdomains.txt
var subdomainsTxt string

// Subdomains returns the embedded default label list.
func Subdomains() []string {
	words, _ := Parse(strings.NewReader(subdomainsTxt))
	return words
}

// Parse reads one label per line. Lines are trimmed and lower-cased, empty
// lines and # comments are skipped, and duplicates keep their first position.
func Parse(r io.Reader) ([]string, error) {
	var words []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		line = strings.Trim(line, ".")
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading wordlist: %w", err)
	}
	return words, nil
}

// Load reads a label list from path. An empty file is an error.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	words, err := Parse(f)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist %s has no labels", path)
	}
	return words, nil
}
