package recon

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/vulnverified/aegis/internal/engine"
)

//go:embed signatures.json
var signaturesJSON []byte

// Signature maps a banner pattern to a service name. VersionGroup is the
// capture group holding the version, or 0 when the pattern captures none.
type Signature struct {
	Service      string `json:"service"`
	Pattern      string `json:"pattern"`
	VersionGroup int    `json:"version_group"`
	regex        *regexp.Regexp
}

var (
	signatures     []Signature
	signaturesOnce sync.Once
)

func loadSignatures() {
	signaturesOnce.Do(func() {
		var raw []Signature
		if err := json.Unmarshal(signaturesJSON, &raw); err != nil {
			return
		}
		// Rules are evaluated in file order; a rule that does not compile is
		// dropped rather than matched.
		for _, sig := range raw {
			re, err := regexp.Compile("(?m)" + sig.Pattern)
			if err != nil {
				continue
			}
			sig.regex = re
			signatures = append(signatures, sig)
		}
	})
}

// Signatures returns the compiled signature table in priority order.
func Signatures() []Signature {
	loadSignatures()
	return signatures
}

// Identify returns the first signature match for banner. An empty banner or
// one matching no signature yields service "unknown".
func Identify(banner string) engine.Fingerprint {
	banner = strings.TrimSpace(banner)
	if banner == "" {
		return engine.Fingerprint{Service: "unknown"}
	}
	for _, sig := range Signatures() {
		m := sig.regex.FindStringSubmatch(banner)
		if m == nil {
			continue
		}
		fp := engine.Fingerprint{Service: sig.Service}
		if sig.VersionGroup > 0 && sig.VersionGroup < len(m) {
			fp.Version = m[sig.VersionGroup]
		}
		return fp
	}
	return engine.Fingerprint{Service: "unknown"}
}
