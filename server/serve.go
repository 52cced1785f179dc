package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/sambeau/sorrel/config"
)

// FileServer resolves request paths against the served folders and
// writes complete HTTP responses for them.
type FileServer struct {
	cfg       *config.Config
	log       *Logger
	injector  *Injector
	headerCfg responseHeaderConfig
}

func NewFileServer(cfg *config.Config, log *Logger, injector *Injector) *FileServer {
	return &FileServer{
		cfg:       cfg,
		log:       log,
		injector:  injector,
		headerCfg: headerConfigFrom(cfg),
	}
}

func headerConfigFrom(cfg *config.Config) responseHeaderConfig {
	return responseHeaderConfig{
		corsEnabled:        cfg.CORS.Enabled,
		contentTypeOptions: cfg.Security.ContentTypeOptions,
		frameOptions:       cfg.Security.FrameOptions,
		referrerPolicy:     cfg.Security.ReferrerPolicy,
	}
}

// Serve attempts to satisfy urlPath from the folders in order. It
// returns the status written and true when a response went out, or
// false when the caller should produce a 404 (or when a send failed
// before any bytes went out).
func (fs *FileServer) Serve(conn net.Conn, urlPath string, folders []string, headOnly bool) (int, bool) {
	// Root request short-circuits to index.html
	if urlPath == "/" || urlPath == "/index.html" {
		for _, folder := range folders {
			rp, err := Resolve(folder, "index.html")
			if err == nil && !rp.IsDir {
				return 200, fs.serveFile(conn, rp, "/index.html", headOnly)
			}
		}
		if urlPath == "/index.html" {
			return 0, false
		}
		// Fall through so "/" can still show a folder listing
	}

	for _, folder := range folders {
		rp, err := Resolve(folder, urlPath)
		if errors.Is(err, ErrPathRejected) {
			fs.log.Warnf("rejected request path %q: potential probing attempt", urlPath)
			fs.sendPage(conn, 403, ForbiddenPage(urlPath), headOnly)
			return 403, true
		}
		if err != nil {
			continue
		}
		if rp.IsDir {
			return 200, fs.serveListing(conn, rp, urlPath, headOnly)
		}
		return 200, fs.serveFile(conn, rp, urlPath, headOnly)
	}
	return 0, false
}

func (fs *FileServer) serveListing(conn net.Conn, rp ResolvedPath, urlPath string, headOnly bool) bool {
	page, err := RenderDirectoryListing(rp.Path, urlPath)
	if err != nil {
		fs.log.Errorf("directory listing for %s: %v", rp.Path, err)
		return false
	}
	return fs.sendHTML(conn, 200, fs.injector.Inject(page), headOnly)
}

func (fs *FileServer) serveFile(conn net.Conn, rp ResolvedPath, urlPath string, headOnly bool) bool {
	info, err := os.Stat(rp.Path)
	if err != nil {
		fs.log.Errorf("stat %s: %v", rp.Path, err)
		return false
	}

	ext := strings.ToLower(filepath.Ext(rp.Path))
	mimeType := MimeTypeFor(rp.Path)
	markdown := isMarkdownPath(rp.Path) && fs.cfg.Serving.MarkdownPreview

	if !fs.extensionAllowed(ext) && !markdown {
		return fs.serveDownload(conn, rp, info.Size(), mimeType, headOnly)
	}

	// Large non-HTML files are streamed from disk. HTML (and rendered
	// Markdown) buffers because injection needs the whole body, but
	// only up to the configured cap; past it the file streams as-is
	// with no injection rather than holding it all in memory.
	if info.Size() > fs.cfg.Serving.StreamingThreshold && !isHTMLPath(rp.Path) && !markdown {
		return fs.stream(conn, rp, info.Size(), mimeType, "", headOnly)
	}
	if limit := int64(fs.cfg.Serving.MaxFileSizeMB) * 1024 * 1024; limit > 0 && info.Size() > limit {
		return fs.stream(conn, rp, info.Size(), mimeType, "", headOnly)
	}

	body, err := os.ReadFile(rp.Path)
	if err != nil {
		fs.log.Errorf("read %s: %v", rp.Path, err)
		return false
	}

	switch {
	case isHTMLPath(rp.Path):
		return fs.sendHTML(conn, 200, fs.injector.Inject(body), headOnly)
	case markdown:
		page, err := RenderMarkdownPage(body, rp.Path)
		if err != nil {
			fs.log.Errorf("%v", err)
			return false
		}
		return fs.sendHTML(conn, 200, fs.injector.Inject(page), headOnly)
	default:
		return fs.sendBody(conn, 200, mimeType, body, headOnly)
	}
}

func (fs *FileServer) extensionAllowed(ext string) bool {
	for _, allowed := range fs.cfg.Serving.AllowedTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (fs *FileServer) serveDownload(conn net.Conn, rp ResolvedPath, size int64, mimeType string, headOnly bool) bool {
	disposition := fmt.Sprintf("attachment; filename=%q", filepath.Base(rp.Path))
	if size > fs.cfg.Serving.StreamingThreshold {
		return fs.stream(conn, rp, size, mimeType, disposition, headOnly)
	}
	body, err := os.ReadFile(rp.Path)
	if err != nil {
		fs.log.Errorf("read %s: %v", rp.Path, err)
		return false
	}
	resp := NewResponse(200, fs.headerCfg).
		SetHeader("Content-Type", mimeType).
		SetHeader("Content-Disposition", disposition).
		SetBody(body)
	resp.AddCacheHeaders("")
	if fs.cfg.CORS.Enabled {
		resp.AddCORSHeaders()
	}
	return fs.finish(conn, resp, headOnly)
}

// stream sends the file straight from disk with a declared length.
// No injection and no compression on this path.
func (fs *FileServer) stream(conn net.Conn, rp ResolvedPath, size int64, mimeType, disposition string, headOnly bool) bool {
	f, err := os.Open(rp.Path)
	if err != nil {
		fs.log.Errorf("open %s: %v", rp.Path, err)
		return false
	}
	defer f.Close()

	resp := NewResponse(200, fs.headerCfg).
		SetHeader("Content-Type", mimeType).
		SetHeader("Content-Length", strconv.FormatInt(size, 10))
	if disposition != "" {
		resp.SetHeader("Content-Disposition", disposition)
	}
	resp.AddCacheHeaders("")
	if fs.cfg.CORS.Enabled {
		resp.AddCORSHeaders()
	}
	if err := resp.SendHeadersOnly(conn); err != nil {
		fs.log.Debugf("send headers for %s: %v", rp.Path, err)
		return false
	}
	if headOnly {
		return true
	}
	if _, err := io.Copy(conn, f); err != nil {
		fs.log.Debugf("stream %s: %v", rp.Path, err)
	}
	return true
}

func (fs *FileServer) sendHTML(conn net.Conn, status int, body []byte, headOnly bool) bool {
	return fs.sendBody(conn, status, "text/html", body, headOnly)
}

// sendPage writes a pre-rendered HTML page such as an error page.
func (fs *FileServer) sendPage(conn net.Conn, status int, body []byte, headOnly bool) bool {
	return fs.sendBody(conn, status, "text/html", body, headOnly)
}

func (fs *FileServer) sendBody(conn net.Conn, status int, mimeType string, body []byte, headOnly bool) bool {
	resp := NewResponse(status, fs.headerCfg).
		SetHeader("Content-Type", mimeType)
	resp.AddCacheHeaders("")
	if fs.cfg.CORS.Enabled {
		resp.AddCORSHeaders()
	}

	if compressed, ok := fs.maybeCompress(mimeType, body); ok {
		resp.AddCompressionHeaders()
		resp.SetBody(compressed)
	} else {
		resp.SetBody(body)
	}
	return fs.finish(conn, resp, headOnly)
}

// maybeCompress gzips the body when compression is on, the type is
// compressible, and the result is strictly smaller.
func (fs *FileServer) maybeCompress(mimeType string, body []byte) ([]byte, bool) {
	c := fs.cfg.Compression
	if !c.Enabled || len(body) < c.MinSize || !IsCompressible(mimeType) {
		return nil, false
	}
	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(body) {
		return nil, false
	}
	return buf.Bytes(), true
}

func (fs *FileServer) finish(conn net.Conn, resp *Response, headOnly bool) bool {
	var err error
	if headOnly {
		err = resp.SendHeadersOnly(conn)
	} else {
		err = resp.Send(conn)
	}
	if err != nil {
		fs.log.Debugf("send response: %v", err)
	}
	return true
}
