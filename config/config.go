package config

import (
	"fmt"
	"time"
)

// Config represents the complete sorrel configuration.
// Snapshots handed to the server are treated as immutable: a settings
// change produces a new Config rather than mutating one in place.
type Config struct {
	BaseDir     string            `yaml:"-"` // Directory containing the config file, for resolving relative paths
	Server      ServerConfig      `yaml:"server"`
	Folders     []string          `yaml:"folders"` // Served root folders, in lookup order
	Serving     ServingConfig     `yaml:"serving"`
	LiveReload  LiveReloadConfig  `yaml:"live_reload"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Connections ConnectionsConfig `yaml:"connections"`
	Compression CompressionConfig `yaml:"compression"`
	CORS        CORSConfig        `yaml:"cors"`
	Security    SecurityConfig    `yaml:"security"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Dev         DevConfig         `yaml:"dev"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // 0 means pick a free ephemeral port
}

// ServingConfig holds file serving settings
type ServingConfig struct {
	AllowedTypes       []string `yaml:"allowed_types"`       // Extensions rendered inline; others are forced downloads
	MarkdownPreview    bool     `yaml:"markdown_preview"`    // Render .md files as HTML
	MaxFileSizeMB      int      `yaml:"max_file_size"`       // Refuse to buffer files above this (MB)
	StreamingThreshold int64    `yaml:"streaming_threshold"` // Files above this many bytes are streamed
}

// LiveReloadConfig holds browser reload settings
type LiveReloadConfig struct {
	Enabled            bool     `yaml:"enabled"`              // Watch files and inject the reload script
	FullReload         bool     `yaml:"full_reload"`          // Always send "reload", never "refresh-css"
	CSSInjection       bool     `yaml:"css_injection"`        // Hot-swap stylesheets for .css changes
	DelayMS            int      `yaml:"delay"`                // Debounce window before broadcasting (ms); 0 = immediate
	IgnoreExts         []string `yaml:"ignore_exts"`          // Extensions that never trigger a reload
	SuppressTagWarning bool     `yaml:"suppress_tag_warning"` // Silence the missing-</body> warning
}

// WatcherConfig holds file watcher settings
type WatcherConfig struct {
	Mode            string        `yaml:"mode"`          // "notify" (OS events) or "poll"
	PollInterval    time.Duration `yaml:"poll_interval"` // Poll mode scan interval
	DebounceMS      int           `yaml:"debounce"`      // Per-path duplicate suppression window (ms)
	MaxWatchedDirs  int           `yaml:"max_dirs"`      // Cap on watched directories
	IgnoreDirs      []string      `yaml:"ignore_dirs"`   // Directory names never watched
	IgnoreFiles     []string      `yaml:"ignore_files"`  // Glob patterns never reported
	MaxTrackedPaths int           `yaml:"max_tracked"`   // Bound on debounce bookkeeping entries
}

// ConnectionsConfig holds connection admission settings
type ConnectionsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"` // Admission ceiling; excess gets 503
	Timeout       time.Duration `yaml:"timeout"`        // Per-connection read/write deadline
	MaxWorkers    int           `yaml:"max_workers"`    // Bound on concurrent handler goroutines
	RetryAfter    int           `yaml:"retry_after"`    // Retry-After seconds on 503
}

// CompressionConfig holds gzip settings
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`    // gzip level 1-9 (0 = default)
	MinSize int  `yaml:"min_size"` // Bodies below this are never compressed
}

// CORSConfig holds CORS header settings
type CORSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SecurityConfig holds security header settings
type SecurityConfig struct {
	ContentTypeOptions string `yaml:"content_type_options"` // X-Content-Type-Options
	FrameOptions       string `yaml:"frame_options"`        // X-Frame-Options
	ReferrerPolicy     string `yaml:"referrer_policy"`      // Referrer-Policy
}

// ProxyConfig holds reverse-proxy passthrough settings
type ProxyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path"` // Requests under this prefix are forwarded
	Upstream string `yaml:"upstream"`  // e.g. "http://localhost:3000"
}

// DevConfig holds dev log settings
type DevConfig struct {
	LogDatabase    string `yaml:"log_database"`     // SQLite file for the dev log ("" = disabled)
	LogMaxSize     int64  `yaml:"log_max_size"`     // Max database size in bytes
	LogTruncatePct int    `yaml:"log_truncate_pct"` // Percentage deleted when truncating
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Quiet  bool   `yaml:"quiet"`  // suppress request logs
}

// DefaultAllowedTypes are the extensions served inline rather than as
// downloads. Everything else is offered as an attachment.
var DefaultAllowedTypes = []string{
	".html", ".htm", ".css", ".js", ".mjs",
	".jsx", ".tsx", ".ts", ".vue", ".svelte",
	".scss", ".sass", ".less",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".webp", ".avif",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp4", ".webm", ".ogg", ".mp3", ".wav",
	".pdf", ".json", ".xml", ".map", ".md", ".txt",
}

// DefaultIgnoreDirs are directory names the watcher always skips.
var DefaultIgnoreDirs = []string{
	"node_modules", ".git", "__pycache__",
	".svn", ".hg", ".sass-cache", ".pytest_cache",
}

// Defaults returns a Config with sensible defaults for a local dev server
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5500,
		},
		Serving: ServingConfig{
			AllowedTypes:       append([]string(nil), DefaultAllowedTypes...),
			MarkdownPreview:    true,
			MaxFileSizeMB:      100,
			StreamingThreshold: 1 << 20, // 1MB
		},
		LiveReload: LiveReloadConfig{
			Enabled:      true,
			FullReload:   false,
			CSSInjection: true,
			DelayMS:      100,
			IgnoreExts:   []string{".log", ".map"},
		},
		Watcher: WatcherConfig{
			Mode:            "notify",
			PollInterval:    time.Second,
			DebounceMS:      500,
			MaxWatchedDirs:  50,
			IgnoreDirs:      append([]string(nil), DefaultIgnoreDirs...),
			IgnoreFiles:     []string{"**/node_modules/**", "**/.git/**", "**/__pycache__/**"},
			MaxTrackedPaths: 1024,
		},
		Connections: ConnectionsConfig{
			MaxConcurrent: 100,
			Timeout:       30 * time.Second,
			MaxWorkers:    64,
			RetryAfter:    5,
		},
		Compression: CompressionConfig{
			Enabled: true,
			MinSize: 256,
		},
		CORS: CORSConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			ContentTypeOptions: "nosniff",
			FrameOptions:       "SAMEORIGIN",
			ReferrerPolicy:     "same-origin",
		},
		Dev: DevConfig{
			LogMaxSize:     10 * 1024 * 1024,
			LogTruncatePct: 25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration after all overrides have been applied
func Validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if len(cfg.Folders) == 0 {
		return fmt.Errorf("no folders to serve")
	}
	switch cfg.Watcher.Mode {
	case "notify", "poll":
	default:
		return fmt.Errorf("invalid watcher mode %q (want \"notify\" or \"poll\")", cfg.Watcher.Mode)
	}
	if cfg.Compression.Level < 0 || cfg.Compression.Level > 9 {
		return fmt.Errorf("invalid compression level: %d", cfg.Compression.Level)
	}
	if cfg.Connections.MaxConcurrent < 1 {
		return fmt.Errorf("connections.max_concurrent must be at least 1")
	}
	if cfg.Connections.MaxWorkers < 1 {
		return fmt.Errorf("connections.max_workers must be at least 1")
	}
	if cfg.Proxy.Enabled {
		if cfg.Proxy.BasePath == "" || cfg.Proxy.Upstream == "" {
			return fmt.Errorf("proxy requires base_path and upstream")
		}
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	return nil
}

// DebounceWindow returns the watcher's per-path suppression window.
func (w WatcherConfig) DebounceWindow() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// Delay returns the broadcaster's coalescing window.
func (lr LiveReloadConfig) Delay() time.Duration {
	return time.Duration(lr.DelayMS) * time.Millisecond
}
