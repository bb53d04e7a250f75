package caddy

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/protomaps/pmtiles-reader/pmtiles"
	"go.uber.org/zap"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

func init() {
	caddy.RegisterModule(Middleware{})
	httpcaddyfile.RegisterHandlerDirective("pmtiles_proxy", parseCaddyfile)
}

const defaultCacheSize = 64

// Middleware serves the tiles and TileJSON of the PMTiles archives in a bucket.
// Requests for paths no archive answers fall through to the next handler.
type Middleware struct {
	// Bucket is a gocloud bucket URL or a local directory.
	Bucket string `json:"bucket"`
	// Prefix selects a directory within the bucket. Defaults to the bucket root.
	Prefix string `json:"prefix,omitempty"`
	// CacheSize is the number of archives whose header and root directory stay in memory.
	CacheSize int    `json:"cache_size,omitempty"`
	PublicURL string `json:"public_url,omitempty"`

	logger *zap.Logger
	server *pmtiles.Server
}

// CaddyModule returns the Caddy module information.
func (Middleware) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.pmtiles_proxy",
		New: func() caddy.Module { return new(Middleware) },
	}
}

// Provision opens the bucket. Caddy calls it before Validate, so defaults are
// applied here.
func (m *Middleware) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.CacheSize <= 0 {
		m.CacheSize = defaultCacheSize
	}
	if m.Prefix == "" {
		m.Prefix = "."
	}
	server, err := pmtiles.NewServer(ctx, m.Bucket, m.Prefix, m.logger, m.CacheSize, m.PublicURL)
	if err != nil {
		return fmt.Errorf("opening bucket %s: %w", m.Bucket, err)
	}
	m.server = server
	m.logger.Debug("provisioned pmtiles proxy",
		zap.String("bucket", m.Bucket),
		zap.String("prefix", m.Prefix),
		zap.Int("cache_size", m.CacheSize))
	return nil
}

func (m *Middleware) Cleanup() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

func (m *Middleware) Validate() error {
	switch {
	case m.Bucket == "":
		return errors.New("no bucket")
	case m.CacheSize <= 0:
		return errors.New("cache_size must be positive")
	case strings.HasPrefix(m.Prefix, "/"):
		return fmt.Errorf("prefix %q must be relative to the bucket", m.Prefix)
	}
	return nil
}

func (m Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	start := time.Now()
	status, headers, body := m.server.Get(r.Context(), r.URL.Path)
	if status == http.StatusNotFound {
		return next.ServeHTTP(w, r)
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	n, err := w.Write(body)
	m.logger.Debug("served",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int("bytes", n),
		zap.Duration("duration", time.Since(start)))
	if err != nil {
		return caddyhttp.Error(http.StatusInternalServerError, err)
	}
	return nil
}

// UnmarshalCaddyfile sets up the handler from Caddyfile tokens:
//
//	pmtiles_proxy {
//		bucket     <url>
//		prefix     <dir>
//		cache_size <archives>
//		public_url <url>
//	}
func (m *Middleware) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // directive name
	for d.NextBlock(0) {
		key := d.Val()
		var value string
		if !d.Args(&value) {
			return d.ArgErr()
		}
		switch key {
		case "bucket":
			m.Bucket = value
		case "prefix":
			m.Prefix = value
		case "cache_size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return d.Errf("cache_size %q: %v", value, err)
			}
			m.CacheSize = n
		case "public_url":
			m.PublicURL = value
		default:
			return d.Errf("unrecognized subdirective %s", key)
		}
	}
	return nil
}

func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var m Middleware
	err := m.UnmarshalCaddyfile(h.Dispenser)
	return m, err
}

var (
	_ caddy.Provisioner           = (*Middleware)(nil)
	_ caddy.CleanerUpper          = (*Middleware)(nil)
	_ caddy.Validator             = (*Middleware)(nil)
	_ caddyhttp.MiddlewareHandler = (*Middleware)(nil)
	_ caddyfile.Unmarshaler       = (*Middleware)(nil)
)
