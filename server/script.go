package server

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed templates/livereload.html
var clientScriptTemplate string

// RenderClientScript fills the host and port placeholders in the
// embedded live-reload client template.
func RenderClientScript(host string, port int) []byte {
	s := strings.ReplaceAll(clientScriptTemplate, "{{HOST}}", host)
	s = strings.ReplaceAll(s, "{{PORT}}", strconv.Itoa(port))
	return []byte(s)
}
