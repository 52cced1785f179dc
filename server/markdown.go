package server

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var markdownConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

const markdownStyles = `
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
    line-height: 1.6;
    max-width: 800px;
    margin: 40px auto;
    padding: 0 20px;
    color: #333;
  }
  h1, h2, h3 { color: #2c3e50; }
  pre {
    background: #f6f8fa;
    padding: 16px;
    border-radius: 6px;
    overflow-x: auto;
  }
  code {
    background: #f6f8fa;
    padding: 2px 5px;
    border-radius: 3px;
    font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
    font-size: 0.9em;
  }
  pre code { padding: 0; background: none; }
  blockquote {
    border-left: 4px solid #ddd;
    margin-left: 0;
    padding-left: 16px;
    color: #666;
  }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #ddd; padding: 8px 12px; }
  th { background: #f6f8fa; }
  img { max-width: 100%; }
  a { color: #3498db; }
`

// RenderMarkdownPage converts a Markdown source file into a complete
// styled HTML document ready for the live-reload injector.
func RenderMarkdownPage(source []byte, sourcePath string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownConverter.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("render markdown %s: %w", sourcePath, err)
	}

	title := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>%s</style>
</head>
<body>
`, html.EscapeString(title), markdownStyles)
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String()), nil
}
