package server

import (
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
)

const errorPageStyles = `
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
    text-align: center;
    padding: 50px;
    margin: 0;
    background: #f5f5f5;
  }
  .container {
    max-width: 600px;
    margin: 0 auto;
    background: white;
    padding: 40px;
    border-radius: 8px;
    box-shadow: 0 2px 4px rgba(0,0,0,0.1);
  }
  h1 { color: #e74c3c; margin-bottom: 10px; font-size: 48px; }
  h2 { color: #333; font-weight: normal; margin-bottom: 30px; }
  p { color: #666; line-height: 1.6; }
  code {
    background: #f0f0f0;
    padding: 2px 6px;
    border-radius: 3px;
    font-family: monospace;
  }
  .suggestion {
    background: #fff3cd;
    border: 1px solid #ffeaa7;
    padding: 15px;
    border-radius: 4px;
    margin: 20px 0;
    text-align: left;
  }
  .suggestion ul { margin: 10px 0 0 20px; padding: 0; }
  .suggestion li { margin: 5px 0; }
  a { color: #3498db; text-decoration: none; }
  a:hover { text-decoration: underline; }
  .back-link { margin-top: 30px; }
  small { color: #999; }
`

// ErrorPage renders a styled error page. details and extra are trusted
// HTML snippets built by the callers below.
func ErrorPage(status int, message, details, extra string) []byte {
	if message == "" {
		message = statusText[status]
		if message == "" {
			message = "Unknown Error"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%d %s</title>
<style>%s</style>
</head>
<body>
<div class="container">
<h1>%d</h1>
<h2>%s</h2>
`, status, html.EscapeString(message), errorPageStyles, status, html.EscapeString(message))

	if details != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", details)
	}
	if extra != "" {
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString(`<div class="back-link"><a href="/">&larr; Back to home</a></div>
</div>
</body>
</html>
`)
	return []byte(b.String())
}

// NotFoundPage builds the 404 page with "did you mean" suggestions
// drawn from the served folders.
func NotFoundPage(urlPath string, folders []string) []byte {
	details := fmt.Sprintf("The requested URL <code>%s</code> was not found on this server.",
		html.EscapeString(urlPath))
	return ErrorPage(404, "Page Not Found", details, suggestionsHTML(urlPath, folders))
}

func suggestionsHTML(urlPath string, folders []string) string {
	suggestions := FindSimilarFiles(urlPath, folders)
	if len(suggestions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="suggestion"><strong>Did you mean:</strong><ul>`)
	for _, s := range suggestions {
		escaped := html.EscapeString(s.Path)
		fmt.Fprintf(&b, `<li><a href="/%s">%s</a></li>`, escaped, escaped)
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

// ForbiddenPage is returned for rejected path patterns.
func ForbiddenPage(urlPath string) []byte {
	details := fmt.Sprintf("Access to <code>%s</code> is not permitted.",
		html.EscapeString(urlPath))
	return ErrorPage(403, "Forbidden", details, "")
}

// BadRequestPage is returned for unparseable requests.
func BadRequestPage(reason string) []byte {
	details := "The server cannot process your request due to invalid syntax."
	if reason != "" {
		details = html.EscapeString(reason)
	}
	return ErrorPage(400, "Bad Request", details, "")
}

// InternalErrorPage carries an opaque ID that is also written to the
// server log so the two can be correlated.
func InternalErrorPage() ([]byte, string) {
	errorID := uuid.NewString()
	details := fmt.Sprintf(
		"The server encountered an internal error and was unable to complete your request.<br><br><small>Error ID: %s</small>",
		errorID)
	return ErrorPage(500, "Internal Server Error", details, ""), errorID
}

// UnavailablePage is returned when the connection ceiling is reached.
func UnavailablePage(retryAfter int) []byte {
	details := fmt.Sprintf(
		"The server is currently unable to handle your request due to temporary overload. Please try again in %d seconds.",
		retryAfter)
	return ErrorPage(503, "Service Unavailable", details,
		"<p><small>Maximum concurrent connections reached</small></p>")
}
