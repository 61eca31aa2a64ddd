package osint

import (
	"math"
	"strings"
	"time"

	"github.com/vulnverified/aegis/internal/engine"
)

// establishedAfterDays is the age beyond which a domain counts as established.
const establishedAfterDays = 365

var creationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
	"20060102",
}

// ParseCreationDate parses the registration dates registries commonly
// emit. When the whole value does not parse, its first field is tried.
func ParseCreationDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	candidates := []string{s}
	if fields := strings.Fields(s); len(fields) > 1 {
		candidates = append(candidates, fields[0])
	}
	for _, c := range candidates {
		for _, layout := range creationLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// AnalyzeDomainAge derives the domain's age at now. It returns nil when the
// creation date is missing or unparseable.
func AnalyzeDomainAge(creation string, now time.Time) *engine.DomainAge {
	created, ok := ParseCreationDate(creation)
	if !ok {
		return nil
	}
	days := int(now.Sub(created).Hours() / 24)
	if days < 0 {
		days = 0
	}
	reputation := "new"
	if days > establishedAfterDays {
		reputation = "established"
	}
	return &engine.DomainAge{
		Days:         days,
		Years:        math.Round(float64(days)/365*10) / 10,
		Reputation:   reputation,
		CreationDate: strings.TrimSpace(creation),
	}
}
