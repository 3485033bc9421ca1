// ABOUTME: Activity helpers for URL normalization and event deduplication keys
// ABOUTME: Keys are stable so replayed or re-shared events are stored once
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NormalizeURL reduces a shared link to a canonical form: lower-case scheme and host,
// no "www." prefix, default ports, fragments, tracking parameters or trailing slash.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" {
		scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host = host + ":" + port
	}

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	out := scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
	if len(parts) > 0 {
		out += "?" + strings.Join(parts, "&")
	}
	return out
}

// ActivityDedupKey returns the storage dedup key for an event. An external id wins when present.
// Shared content is keyed on the normalized link so the same article counts once per person.
func ActivityDedupKey(externalID string, personID uuid.UUID, activityType string, occurredAt time.Time, link string) string {
	if externalID != "" {
		return "ext:" + externalID
	}
	var material string
	if activityType == ActivityContentShared && link != "" {
		material = strings.Join([]string{personID.String(), activityType, NormalizeURL(link)}, "|")
	} else {
		material = strings.Join([]string{personID.String(), activityType, occurredAt.UTC().Format(time.RFC3339Nano)}, "|")
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// IsActivityType reports whether t is an accepted activity type.
func IsActivityType(t string) bool {
	for _, at := range ActivityTypes {
		if at == t {
			return true
		}
	}
	return false
}
