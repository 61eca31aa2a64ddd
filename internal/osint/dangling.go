package osint

import (
	"strings"

	"github.com/miekg/dns"
)

// DanglingCNAME is a CNAME whose target no longer resolves on a service
// where the name can be claimed by someone else.
type DanglingCNAME struct {
	Host   string `json:"host" yaml:"host"`
	CNAME  string `json:"cname" yaml:"cname"`
	Status string `json:"status" yaml:"status"`
}

// danglingPatterns are CNAME targets known to be vulnerable to subdomain takeover
// when the CNAME points to a service that no longer exists.
var danglingPatterns = []string{
	".s3.amazonaws.com",
	".azurewebsites.net",
	".github.io",
	".herokuapp.com",
	".cloudfront.net",
	".elasticbeanstalk.com",
	".trafficmanager.net",
	".blob.core.windows.net",
	".azureedge.net",
	".pantheonsite.io",
	".netlify.app",
	".ghost.io",
	".myshopify.com",
	".surge.sh",
}

// checkDangling returns a DanglingCNAME when cname points at a takeover-prone
// service and the address lookup failed with NXDOMAIN or SERVFAIL.
func checkDangling(host, cname string, rcode int) *DanglingCNAME {
	cnameLower := strings.ToLower(cname)

	matchesPattern := false
	for _, pattern := range danglingPatterns {
		if strings.HasSuffix(cnameLower, pattern) {
			matchesPattern = true
			break
		}
	}
	if !matchesPattern {
		return nil
	}

	status := classifyRcode(rcode)
	if status == "" {
		return nil
	}

	return &DanglingCNAME{
		Host:   host,
		CNAME:  cname,
		Status: status,
	}
}

// classifyRcode returns "NXDOMAIN" or "SERVFAIL", or "" for any other code.
func classifyRcode(rcode int) string {
	switch rcode {
	case dns.RcodeNameError:
		return "NXDOMAIN"
	case dns.RcodeServerFailure:
		return "SERVFAIL"
	}
	return ""
}
