package server

import (
	"regexp"
	"sync"
)

// Anchor tags for script injection, tried in order
var (
	bodyCloseRe = regexp.MustCompile(`(?i)</body>`)
	headCloseRe = regexp.MustCompile(`(?i)</head>`)
	svgCloseRe  = regexp.MustCompile(`(?i)</svg>`)
)

// Injector splices the live-reload client script into HTML payloads.
type Injector struct {
	log          *Logger
	script       []byte
	suppressWarn bool

	warnOnce sync.Once
}

func NewInjector(log *Logger, host string, port int, suppressWarn bool) *Injector {
	return &Injector{
		log:          log,
		script:       RenderClientScript(host, port),
		suppressWarn: suppressWarn,
	}
}

// Inject returns html with the client script inserted before the first
// closing body tag. Falls back to </head>, then </svg>, and finally
// appends the script when no anchor tag exists.
func (in *Injector) Inject(html []byte) []byte {
	for _, re := range []*regexp.Regexp{bodyCloseRe, headCloseRe, svgCloseRe} {
		if loc := re.FindIndex(html); loc != nil {
			out := make([]byte, 0, len(html)+len(in.script))
			out = append(out, html[:loc[0]]...)
			out = append(out, in.script...)
			out = append(out, html[loc[0]:]...)
			return out
		}
	}

	// No anchor tag. Append and warn once per server run.
	if !in.suppressWarn {
		in.warnOnce.Do(func() {
			in.log.Warnf("no </body>, </head> or </svg> tag found in an HTML file; live-reload script appended at end")
		})
	}
	out := make([]byte, 0, len(html)+len(in.script))
	out = append(out, html...)
	out = append(out, in.script...)
	return out
}
