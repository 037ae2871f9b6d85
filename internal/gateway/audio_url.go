package gateway

import "strings"

// NormalizeAudioURL qualifies an audioFile reference from the voice backend.
// References starting with http or data: pass through; absolute paths and bare file
// names are joined to origin. An empty reference stays empty.
func NormalizeAudioURL(origin, audioFile string) string {
	ref := strings.TrimSpace(audioFile)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http") || strings.HasPrefix(lower, "data:") {
		return ref
	}
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return origin + ref
}
