// Package filename implements the filename derivation chain: explicit
// suggestion → Content-Disposition → final URL's last path segment →
// MIME-derived extension → the literal "download", plus sanitization of
// whatever name comes out of that chain.
package filename

import (
	"net/url"
	"path"
	"strings"
)

// Derive picks the final filename for a new task: suggested (explicit,
// e.g. from the CLI or extension bridge) wins outright; otherwise fall
// through Content-Disposition, the final URL's last path segment, a
// MIME-derived extension appended to whatever base name was found, and
// finally "download".
func Derive(suggested, contentDisposition, finalURL, contentType string) string {
	if name := sanitize(suggested); name != "" {
		return name
	}
	if name := sanitize(contentDisposition); name != "" {
		return name
	}

	base := sanitize(lastPathSegment(finalURL))
	if base == "" {
		base = "download"
	}
	return withMIMEExtension(base, contentType)
}

// lastPathSegment returns the final path component of rawURL, percent
// decoded, or "" if rawURL has no usable path.
func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment := path.Base(u.Path)
	if segment == "" || segment == "." || segment == "/" {
		return ""
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	return segment
}

// withMIMEExtension appends the canonical extension for contentType to
// base when base contains no dot (any dot counts as an existing
// extension) and the map actually has an entry for that content type. HTML responses for
// extensionless URLs deliberately get no extension, since ".html" on a
// page saved from a bare directory URL would be surprising.
func withMIMEExtension(base, contentType string) string {
	if strings.Contains(base, ".") {
		return base
	}
	ext, ok := extensionFor(contentType)
	if !ok || ext == "" {
		return base
	}
	return base + "." + ext
}

// extensionFor looks up the canonical extension for a Content-Type,
// ignoring any "; charset=..." parameters.
func extensionFor(contentType string) (string, bool) {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	ext, ok := mimeExtensions[mediaType]
	return ext, ok
}

// sanitize removes characters invalid on Windows/Unix filesystems,
// strips control characters, avoids reserved device names, and trims
// stray leading/trailing dots and spaces.
func sanitize(name string) string {
	if name == "" {
		return ""
	}

	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	for _, c := range []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"} {
		name = strings.ReplaceAll(name, c, "_")
	}

	var b strings.Builder
	for _, r := range name {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	base, ext := name, ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base, ext = name[:idx], name[idx:]
	}
	for _, r := range reservedNames {
		if strings.EqualFold(base, r) {
			base = "_" + base
			break
		}
	}
	name = base + ext

	return strings.Trim(name, " .")
}

var reservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// mimeExtensions is the authoritative MIME-to-extension map. text/html
// and application/xhtml+xml map to the empty extension deliberately — an
// HTML response for an extensionless URL must not gain a ".html" suffix.
var mimeExtensions = map[string]string{
	"text/html":             "",
	"application/xhtml+xml": "",
	"text/plain":            "txt",
	"text/css":              "css",
	"text/csv":              "csv",
	"application/json":      "json",
	"application/xml":       "xml",
	"application/pdf":       "pdf",
	"application/zip":       "zip",
	"application/gzip":      "gz",
	"application/x-tar":     "tar",
	"application/x-7z-compressed":  "7z",
	"application/x-rar-compressed": "rar",
	"application/vnd.rar":          "rar",
	"application/octet-stream":     "bin",
	"application/msword":           "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.ms-excel":                                                 "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":        "xlsx",
	"application/vnd.ms-powerpoint":                                           "ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/svg+xml":    "svg",
	"image/bmp":        "bmp",
	"image/x-icon":     "ico",
	"audio/mpeg":       "mp3",
	"audio/wav":        "wav",
	"audio/ogg":        "ogg",
	"audio/flac":       "flac",
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/x-matroska": "mkv",
	"video/quicktime":  "mov",
	"video/mpeg":       "mpeg",
	"video/x-msvideo":  "avi",
}
