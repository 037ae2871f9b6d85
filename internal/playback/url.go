package playback

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

var ErrInvalidURL = errors.New("invalid audio URL")

var knownExtension = regexp.MustCompile(`(?i)\.(mp3|wav|ogg)$`)

// ResolveURL turns an audio reference into something Media can load. data:
// and http(s) references pass through. Relative references are qualified
// with origin and get ".mp3" when they carry no known extension.
func ResolveURL(origin, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidURL
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") {
		return ref, nil
	}
	if strings.HasPrefix(lower, "http") {
		if _, err := url.Parse(ref); err != nil {
			return "", ErrInvalidURL
		}
		return ref, nil
	}

	full := gateway.NormalizeAudioURL(origin, ref)
	if !knownExtension.MatchString(ref) {
		full += ".mp3"
	}
	u, err := url.Parse(full)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	return full, nil
}
