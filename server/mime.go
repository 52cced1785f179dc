package server

import (
	"mime"
	"path/filepath"
	"strings"
)

// mimeTypes maps lowercase extensions to MIME types. Checked before the
// platform registry so dev-relevant types resolve the same everywhere.
var mimeTypes = map[string]string{
	// Web
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".wasm": "application/wasm",

	// Modern JS
	".ts":     "application/typescript",
	".tsx":    "application/typescript",
	".jsx":    "application/javascript",
	".vue":    "application/javascript",
	".svelte": "application/javascript",

	// Images
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".avif": "image/avif",

	// Fonts
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
	".otf":   "font/otf",

	// Media
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "audio/ogg",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",

	// Documents
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".map":  "application/json",

	// Archives
	".zip": "application/zip",
	".rar": "application/x-rar-compressed",
	".7z":  "application/x-7z-compressed",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
}

// skipCompressionTypes are MIME types whose payloads are already
// compressed; gzipping them wastes cycles for nothing.
var skipCompressionTypes = map[string]bool{
	"image/jpeg":   true,
	"image/png":    true,
	"image/gif":    true,
	"image/webp":   true,
	"image/avif":   true,
	"image/x-icon": true,

	"audio/mpeg": true,
	"audio/ogg":  true,
	"video/mp4":  true,
	"video/webm": true,

	"application/zip":               true,
	"application/gzip":              true,
	"application/x-rar-compressed":  true,
	"application/x-7z-compressed":   true,
	"application/pdf":               true,
	"font/woff":                     true,
	"font/woff2":                    true,
}

// MimeTypeFor returns the MIME type for a path based on its extension,
// defaulting to application/octet-stream. The lookup is case-insensitive.
func MimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// Strip any charset parameter; callers add their own
		if i := strings.Index(t, ";"); i != -1 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// IsCompressible reports whether a MIME type is worth gzipping.
func IsCompressible(mimeType string) bool {
	return !skipCompressionTypes[mimeType]
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// isHTMLPath reports whether a path names an HTML document.
func isHTMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// isMarkdownPath reports whether a path names a Markdown document.
func isMarkdownPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// isCSSPath reports whether a path names a stylesheet.
func isCSSPath(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".css"
}
