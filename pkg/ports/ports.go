// Package ports provides common port definitions for network scanning.
package ports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Common is the default scan set: well-known service ports.
var Common = []int{
	21, 22, 23, 25, 53, 80, 110, 111, 135, 139,
	143, 443, 445, 993, 995, 1723, 3306, 3389, 5900, 8080,
	8443,
}

// Top100 is the top 100 most common TCP ports based on nmap frequency data.
var Top100 = normalize([]int{
	21, 22, 23, 25, 26, 53, 80, 81, 110, 111,
	113, 135, 139, 143, 179, 199, 443, 445, 465, 514,
	515, 548, 554, 587, 631, 636, 646, 993, 995, 1025,
	1026, 1027, 1028, 1029, 1110, 1433, 1720, 1723, 1755, 1900,
	2000, 2001, 2049, 2121, 2717, 3000, 3128, 3306, 3389, 3986,
	4899, 5000, 5009, 5051, 5060, 5101, 5190, 5357, 5432, 5631,
	5666, 5800, 5900, 6000, 6001, 6646, 7070, 8000, 8008, 8009,
	8080, 8081, 8443, 8888, 9090, 9100, 9999, 10000, 32768, 49152,
	49153, 49154, 49155, 49156, 49157, 1080, 1443, 2082, 2083, 2086,
	2087, 4443, 6379, 6443, 8443, 8880, 9200, 9443, 27017, 27018,
})

// maxRange bounds how many ports a single range may expand to.
const maxRange = 65535

// Parse turns comma-separated ports and inclusive ranges ("22,80,8000-8100"),
// or one of the named sets "common" and "top100", into a sorted,
// deduplicated port list.
func Parse(list string) ([]int, error) {
	list = strings.TrimSpace(strings.ToLower(list))
	switch list {
	case "", "common", "default":
		return append([]int(nil), Common...), nil
	case "top100":
		return append([]int(nil), Top100...), nil
	}

	var out []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parsePort(hi); err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("invalid port range %q: end before start", part)
			}
		}
		if end-start >= maxRange {
			return nil, fmt.Errorf("invalid port range %q: too large", part)
		}
		for p := start; p <= end; p++ {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%q lists no ports", list)
	}
	return normalize(out), nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", p)
	}
	return p, nil
}

func normalize(ports []int) []int {
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
