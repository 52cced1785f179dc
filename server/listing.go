package server

import (
	"fmt"
	"html"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// fileIcons maps extensions to listing icons.
var fileIcons = map[string]string{
	".html": "📄", ".htm": "📄",
	".css": "🎨",
	".js": "📜", ".jsx": "📜", ".ts": "📜", ".tsx": "📜",
	".json": "📝", ".txt": "📝", ".md": "📝",
	".xml": "📋",
	".jpg": "🖼️", ".jpeg": "🖼️", ".png": "🖼️", ".gif": "🖼️",
	".svg": "🖼️", ".ico": "🖼️", ".webp": "🖼️",
	".pdf": "📕",
	".zip": "📦", ".gz": "📦", ".tar": "📦", ".7z": "📦",
	".mp3": "🎵", ".wav": "🎵", ".ogg": "🎵",
	".mp4": "🎬", ".webm": "🎬", ".mov": "🎬",
}

const listingStyles = `
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
    line-height: 1.6;
    max-width: 1200px;
    margin: 20px auto;
    padding: 0 20px;
    color: #333;
  }
  h1 { color: #2c3e50; margin-bottom: 20px; }
  .directory-path {
    background: #f8f9fa;
    padding: 10px;
    border-radius: 4px;
    margin-bottom: 20px;
    font-family: monospace;
  }
  table { width: 100%; border-collapse: collapse; margin-top: 20px; }
  th, td { padding: 12px; text-align: left; border-bottom: 1px solid #eee; }
  th { background: #f8f9fa; color: #666; font-weight: 500; }
  a { color: #3498db; text-decoration: none; }
  a:hover { color: #2980b9; }
  .size { width: 100px; text-align: right; }
  .modified { width: 200px; }
  .icon { font-size: 1.2em; }
  tr:hover { background: #f8f9fa; }
  .parent-link {
    display: inline-block;
    padding: 8px 16px;
    background: #eee;
    border-radius: 4px;
    margin-bottom: 20px;
  }
`

type listingEntry struct {
	name     string
	icon     string
	isDir    bool
	size     string
	modified time.Time
}

// FormatFileSize renders a byte count for the directory listing.
func FormatFileSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	for _, unit := range []string{"KB", "MB", "GB", "TB"} {
		v /= 1024
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
	}
	return fmt.Sprintf("%.1f PB", v/1024)
}

func iconFor(name string, isDir bool) string {
	if isDir {
		return "📁"
	}
	ext := strings.ToLower(path.Ext(name))
	if icon, ok := fileIcons[ext]; ok {
		return icon
	}
	return "📄"
}

// RenderDirectoryListing builds the HTML listing page for a directory.
// Hidden entries (dot-prefixed) are skipped, directories sort first.
func RenderDirectoryListing(dirPath, urlPath string) ([]byte, error) {
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dirPath, err)
	}

	entries := make([]listingEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := listingEntry{
			name:     de.Name(),
			icon:     iconFor(de.Name(), de.IsDir()),
			isDir:    de.IsDir(),
			size:     "-",
			modified: info.ModTime(),
		}
		if !de.IsDir() {
			e.size = FormatFileSize(info.Size())
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return strings.ToLower(entries[i].name) < strings.ToLower(entries[j].name)
	})

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Directory: %s</title>
<style>%s</style>
</head>
<body>
<h1>Directory Listing</h1>
<div class="directory-path">%s</div>
`, html.EscapeString(urlPath), listingStyles, html.EscapeString(urlPath))

	if urlPath != "/" && urlPath != "" {
		parent := path.Dir(strings.TrimSuffix(urlPath, "/"))
		if !strings.HasSuffix(parent, "/") {
			parent += "/"
		}
		fmt.Fprintf(&b, `<a class="parent-link" href="%s">⬆️ Parent Directory</a>
`, html.EscapeString(parent))
	}

	b.WriteString(`<table>
<thead><tr><th colspan="2">Name</th><th class="size">Size</th><th class="modified">Last Modified</th></tr></thead>
<tbody>
`)
	for _, e := range entries {
		href := path.Join("/", urlPath, e.name)
		if e.isDir {
			href += "/"
		}
		fmt.Fprintf(&b, `<tr><td style="width: 40px"><span class="icon">%s</span></td><td><a href="%s">%s</a></td><td class="size">%s</td><td class="modified">%s</td></tr>
`,
			e.icon,
			html.EscapeString(href),
			html.EscapeString(e.name),
			e.size,
			e.modified.Format("2006-01-02 15:04"))
	}
	b.WriteString(`</tbody>
</table>
</body>
</html>
`)
	return []byte(b.String()), nil
}
