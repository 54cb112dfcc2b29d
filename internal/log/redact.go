package log

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// urlPattern finds http(s) URLs embedded in free text.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)

// sensitiveParams are query parameters masked by RedactURL. Matching is
// case-insensitive.
var sensitiveParams = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"key":           true,
	"api_key":       true,
	"apikey":        true,
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"client_secret": true,
	"sig":           true,
	"signature":     true,
	"session":       true,
	"sessionid":     true,
	"session_id":    true,
	"sid":           true,
	"auth":          true,
	"code":          true,
}

// passwordPlaceholder stands in for the password while the URL is
// re-encoded, since url.URL would percent-encode MaskValue.
const passwordPlaceholder = "redacted"

// RedactURL masks the password of rawURL's userinfo and the values of
// sensitive query parameters. Strings that do not parse as absolute URLs
// are returned unchanged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}

	changed, maskedPassword := false, false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), passwordPlaceholder)
			changed, maskedPassword = true, true
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		maskedQuery := false
		for name, values := range q {
			if !sensitiveParams[strings.ToLower(name)] {
				continue
			}
			for i := range values {
				values[i] = MaskValue
			}
			maskedQuery = true
		}
		if maskedQuery {
			u.RawQuery = encodeQuery(q)
			changed = true
		}
	}

	if !changed {
		return rawURL
	}
	out := u.String()
	if maskedPassword {
		out = strings.Replace(out, ":"+passwordPlaceholder+"@", ":"+MaskValue+"@", 1)
	}
	return out
}

// RedactURLs applies RedactURL to every http(s) URL in s.
func RedactURLs(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, RedactURL)
}

// encodeQuery is url.Values.Encode without escaping the mask, so redacted
// values stay readable.
func encodeQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			if v == MaskValue {
				b.WriteString(v)
			} else {
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}
