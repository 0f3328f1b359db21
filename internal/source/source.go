// Package source resolves raw URLs and collaborator hints into canonical
// slide sources with deterministic, cache-stable identifiers.
package source

import (
	"crypto/sha1" // #nosec G505 - used for cache-stable IDs, not security
	"encoding/hex"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
)

// Kind classifies how a source's media is obtained.
type Kind string

// Supported source kinds.
const (
	KindYouTube Kind = "youtube"
	KindDirect  Kind = "direct"
)

// Source identifies one extractable video source. ID is deterministic
// for a given input, which is what makes on-disk caching stable across
// runs.
type Source struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Hints carries optional collaborator knowledge about the page or
// resource behind a raw URL. All fields may be empty.
type Hints struct {
	// VideoURL is a video URL discovered in page markup (e.g. og:video).
	VideoURL string
	// ContentURL is the canonical content URL when it differs from the
	// raw URL (e.g. after redirects).
	ContentURL string
	// ContentType is the MIME type reported for the raw URL.
	ContentType string
}

// Resolve turns a raw URL plus hints into a Source. The second return
// value is false when the input is not a recognizable video source;
// that is a normal outcome, not an error.
func Resolve(rawURL string, hints Hints) (*Source, bool) {
	// YouTube wins over direct media: a hinted video URL, the content
	// URL, and the raw URL are each tried for an extractable video id.
	for _, candidate := range []string{hints.VideoURL, hints.ContentURL, rawURL} {
		if candidate == "" {
			continue
		}
		if id, ok := YouTubeID(candidate); ok {
			return &Source{
				URL:  "https://www.youtube.com/watch?v=" + id,
				Kind: KindYouTube,
				ID:   "youtube-" + id,
			}, true
		}
	}

	if hints.VideoURL != "" && isPlayableURL(hints.VideoURL, "") {
		return directSource(hints.VideoURL), true
	}
	if rawURL != "" && isPlayableURL(rawURL, hints.ContentType) {
		return directSource(rawURL), true
	}

	return nil, false
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeID extracts an 11-character video id from any of the common
// YouTube URL shapes (watch, youtu.be, embed, shorts, live).
func YouTubeID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtu.be":
		id := firstPathSegment(u.Path)
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if id := u.Query().Get("v"); youtubeIDPattern.MatchString(id) {
			return id, true
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) == 2 {
			switch segments[0] {
			case "embed", "shorts", "live", "v":
				if youtubeIDPattern.MatchString(segments[1]) {
					return segments[1], true
				}
			}
		}
	}

	return "", false
}

// playableExtensions lists file extensions ffmpeg can open directly
// over HTTP or from disk without a downloader in front.
var playableExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
	".mpg":  true,
	".mpeg": true,
}

// isPlayableURL reports whether the URL points at directly playable
// media, by extension, by a video/* content-type hint, or by being an
// existing local file.
func isPlayableURL(rawURL, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		// Treat scheme-less input as a local file path.
		info, statErr := os.Stat(rawURL)
		return statErr == nil && !info.IsDir() && playableExtensions[strings.ToLower(path.Ext(rawURL))]
	}

	return playableExtensions[strings.ToLower(path.Ext(u.Path))]
}

// directSource builds the Source for directly playable media. The id is
// slug(host)-slug(basename)-hex8(sha1(url)); the hash suffix keeps two
// files with the same name on the same host distinct.
func directSource(rawURL string) *Source {
	host := "local"
	basename := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		host = u.Hostname()
		basename = path.Base(u.Path)
	} else {
		basename = path.Base(rawURL)
	}
	basename = strings.TrimSuffix(basename, path.Ext(basename))

	sum := sha1.Sum([]byte(rawURL)) // #nosec G401 - cache key, not security
	suffix := hex.EncodeToString(sum[:])[:8]

	return &Source{
		URL:  rawURL,
		Kind: KindDirect,
		ID:   Slug(host) + "-" + Slug(basename) + "-" + suffix,
	}
}

const maxSlugLen = 40

// Slug lowercases s and reduces it to [a-z0-9-], collapsing runs of
// other characters into single dashes.
func Slug(s string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "src"
	}
	return out
}

func firstPathSegment(p string) string {
	p = strings.Trim(p, "/")
	if idx := strings.IndexByte(p, '/'); idx >= 0 {
		return p[:idx]
	}
	return p
}
