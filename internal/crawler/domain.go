package crawler

import (
	"net/url"
	"strings"
)

// DomainSet restricts which discovered links are followed. Matching is
// case-insensitive, ignores a leading "www.", and accepts subdomains of any
// allowed entry. Entries may be bare domains or full URLs.
type DomainSet struct {
	domains []string
}

// NewDomainSet normalizes the given entries into a DomainSet. Nil input
// yields an empty set that can be seeded later via Add.
func NewDomainSet(entries []string) *DomainSet {
	s := &DomainSet{}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Add normalizes and appends one entry. Empty results are dropped.
func (s *DomainSet) Add(entry string) {
	d := NormalizeDomain(entry)
	if d == "" {
		return
	}
	for _, existing := range s.domains {
		if existing == d {
			return
		}
	}
	s.domains = append(s.domains, d)
}

// Empty reports whether no domains are configured yet.
func (s *DomainSet) Empty() bool {
	return s == nil || len(s.domains) == 0
}

// Allows reports whether the host of rawURL matches an allowed domain or is
// a subdomain of one.
func (s *DomainSet) Allows(rawURL string) bool {
	host := NormalizeDomain(rawURL)
	if host == "" {
		return false
	}
	for _, d := range s.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns a copy of the normalized entries.
func (s *DomainSet) Domains() []string {
	return append([]string(nil), s.domains...)
}

// NormalizeDomain extracts the lowercase host from a bare domain or a full
// URL and strips any "www." prefix.
func NormalizeDomain(entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ""
	}
	host := entry
	if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
		if u, err := url.Parse(entry); err == nil {
			host = u.Hostname()
		}
	} else if strings.Contains(entry, "/") {
		host = strings.SplitN(entry, "/", 2)[0]
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}
