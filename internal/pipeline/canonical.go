package pipeline

import (
	"net/url"
	"sort"
	"strings"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"mc_cid": {},
	"mc_eid": {},
	"ref":    {},
	"source": {},
}

var hostAliases = map[string]string{
	"old.reddit.com": "reddit.com",
	"www.reddit.com": "reddit.com",
	"np.reddit.com":  "reddit.com",
}

// Canonicalize reduces a raw link to the comparable key used for uniqueness
// enforcement. It is pure and deterministic; malformed input is returned
// unchanged so a bad link degrades to an exact-string key instead of
// failing the caller.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return raw
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if alias, ok := hostAliases[host]; ok {
		host = alias
	} else {
		host = strings.TrimPrefix(host, "www.")
	}
	parsed.Host = host
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = parsed.Host + ":" + port
		}
	}

	parsed.Fragment = ""
	// Path stays in decoded form; RawPath is trimmed in lockstep so
	// url.String keeps the original percent-escapes instead of
	// re-escaping them.
	path := parsed.Path
	if path == "" {
		path = "/"
		parsed.RawPath = ""
	}
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
		parsed.RawPath = strings.TrimSuffix(parsed.RawPath, "/")
	}
	parsed.Path = path

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String()
}
