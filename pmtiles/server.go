package pmtiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"strconv"

	"github.com/hashicorp/golang-lru/arc/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// archiveState is what the server keeps per archive between requests.
type archiveState struct {
	header   HeaderV3
	root     Directory
	metadata []byte
}

func (s *archiveState) sizeBytes() int {
	return HeaderV3LenBytes + 32*len(s.root) + len(s.metadata)
}

// Server answers tile, metadata and TileJSON requests for the archives of a
// bucket. Archive names map to the key name + ".pmtiles".
type Server struct {
	bucket    Bucket
	logger    *zap.Logger
	cache     *arc.ARCCache[string, *archiveState]
	fills     singleflight.Group
	publicURL string
	metrics   *metrics
}

// NewServer opens the bucket at bucketURL and returns a Server for it.
// cacheSize is the number of archives whose header, root directory and
// metadata are kept in memory.
func NewServer(ctx context.Context, bucketURL string, prefix string, logger *zap.Logger, cacheSize int, publicURL string) (*Server, error) {
	// without a bucket the prefix is the local directory itself
	bucketPrefix := prefix
	if bucketURL == "" {
		bucketPrefix = ""
	}
	bucketURL, _, err := NormalizeBucketKey(bucketURL, prefix, "")
	if err != nil {
		return nil, err
	}

	bucket, err := OpenBucket(ctx, bucketURL, bucketPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket for %s: %w", bucketURL, err)
	}

	return NewServerWithBucket(bucket, logger, cacheSize, publicURL)
}

// NewServerWithBucket returns a Server reading from an already opened bucket.
func NewServerWithBucket(bucket Bucket, logger *zap.Logger, cacheSize int, publicURL string) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := arc.NewARC[string, *archiveState](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating archive cache: %w", err)
	}
	return &Server{
		bucket:    bucket,
		logger:    logger,
		cache:     cache,
		publicURL: publicURL,
		metrics:   createMetrics("", logger),
	}, nil
}

// Close releases the underlying bucket.
func (server *Server) Close() error {
	return server.bucket.Close()
}

func (server *Server) updateCacheStats() {
	size := 0
	for _, name := range server.cache.Keys() {
		if s, ok := server.cache.Peek(name); ok {
			size += s.sizeBytes()
		}
	}
	server.metrics.updateCacheStats(size, server.cache.Len())
}

// getArchive returns the cached state for name, loading it on a miss.
// Concurrent misses for one archive share a single load.
func (server *Server) getArchive(ctx context.Context, name string) (*archiveState, error) {
	if s, ok := server.cache.Get(name); ok {
		server.metrics.cacheRequest(name, "hit")
		return s, nil
	}
	server.metrics.cacheRequest(name, "miss")

	v, err, shared := server.fills.Do(name, func() (interface{}, error) {
		s, err := server.loadArchive(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		server.cache.Add(name, s)
		server.updateCacheStats()
		return s, nil
	})
	server.metrics.archiveLoad(name, err, shared)
	if err != nil {
		return nil, err
	}
	return v.(*archiveState), nil
}

func (server *Server) loadArchive(ctx context.Context, name string) (*archiveState, error) {
	key := name + ".pmtiles"
	finish := server.metrics.startBucketRequest(name, "archive")

	archive, err := OpenBucketArchive(ctx, server.bucket, key, WithLogger(server.logger))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			finish(ctx, "404")
		} else {
			finish(ctx, "500")
		}
		return nil, err
	}
	root, err := archive.RootDirectory()
	if err != nil {
		finish(ctx, "500")
		return nil, err
	}
	metadata, err := archive.MetadataBytes()
	if err != nil {
		finish(ctx, "500")
		return nil, err
	}
	finish(ctx, "200")

	server.logger.Info("loaded archive",
		zap.String("name", name),
		zap.Int64("size", archive.Size()),
		zap.Int("root_entries", len(root)))
	return &archiveState{header: archive.Header(), root: root, metadata: metadata}, nil
}

func (server *Server) archiveError(httpHeaders map[string]string, name string, err error) (int, map[string]string, []byte) {
	if errors.Is(err, fs.ErrNotExist) {
		return 404, httpHeaders, []byte("Archive not found")
	}
	server.logger.Error("failed to load archive", zap.String("name", name), zap.Error(err))
	return 500, httpHeaders, []byte("I/O Error")
}

func (server *Server) getTileJSON(ctx context.Context, httpHeaders map[string]string, name string) (int, map[string]string, []byte) {
	s, err := server.getArchive(ctx, name)
	if err != nil {
		return server.archiveError(httpHeaders, name, err)
	}

	if server.publicURL == "" {
		return 501, httpHeaders, []byte("PUBLIC_URL must be set for TileJSON")
	}

	tilejsonBytes, err := CreateTileJSON(s.header, s.metadata, server.publicURL+"/"+name)
	if err != nil {
		server.logger.Error("generating tilejson", zap.String("name", name), zap.Error(err))
		return 500, httpHeaders, []byte("Error generating tilejson")
	}

	httpHeaders["Content-Type"] = "application/json"
	return 200, httpHeaders, tilejsonBytes
}

func (server *Server) getMetadata(ctx context.Context, httpHeaders map[string]string, name string) (int, map[string]string, []byte) {
	s, err := server.getArchive(ctx, name)
	if err != nil {
		return server.archiveError(httpHeaders, name, err)
	}

	httpHeaders["Content-Type"] = "application/json"
	return 200, httpHeaders, s.metadata
}

func (server *Server) getTile(ctx context.Context, httpHeaders map[string]string, name string, z uint8, x uint32, y uint32, ext string) (int, map[string]string, []byte) {
	s, err := server.getArchive(ctx, name)
	if err != nil {
		return server.archiveError(httpHeaders, name, err)
	}
	header := s.header

	if z < header.MinZoom || z > header.MaxZoom {
		return 404, httpHeaders, []byte("Tile not found")
	}

	if want := tileExtensions[header.TileType]; want != "" && want != "."+ext {
		return 400, httpHeaders, []byte(fmt.Sprintf("path mismatch: archive is type %s (%s)", header.TileType, want))
	}

	tileID, err := ZxyToID(z, x, y)
	if err != nil {
		return 400, httpHeaders, []byte("Invalid tile coordinate")
	}

	rng, ok, err := ResolveTile(header, s.root, tileID)
	if errors.Is(err, ErrLeafDirectoryUnsupported) {
		return 501, httpHeaders, []byte("Leaf directories are not supported")
	}
	if err != nil {
		return 500, httpHeaders, []byte("I/O error")
	}
	if !ok {
		return 204, httpHeaders, nil
	}

	if !header.inTileData(rng) {
		server.logger.Warn("tile outside of tile data section", zap.String("name", name), zap.Stringer("tile", Zxy{z, x, y}),
			zap.Uint64("offset", rng.Offset), zap.Uint64("length", rng.Length))
		return 500, httpHeaders, []byte("I/O error")
	}

	finish := server.metrics.startBucketRequest(name, "tile")
	r, err := server.bucket.NewRangeReader(ctx, name+".pmtiles", int64(rng.Offset), int64(rng.Length))
	if err != nil {
		finish(ctx, "500")
		server.logger.Warn("tile read failed", zap.String("name", name), zap.Stringer("tile", Zxy{z, x, y}), zap.Error(err))
		return 500, httpHeaders, []byte("Network error")
	}
	defer r.Close()
	b, err := io.ReadAll(io.LimitReader(r, int64(rng.Length)))
	if err == nil && uint64(len(b)) != rng.Length {
		err = fmt.Errorf("%w: read %d of %d bytes at offset %d", ErrRangeOutOfBounds, len(b), rng.Length, rng.Offset)
	}
	if err != nil {
		finish(ctx, "500")
		server.logger.Warn("tile read failed", zap.String("name", name), zap.Stringer("tile", Zxy{z, x, y}), zap.Error(err))
		return 500, httpHeaders, []byte("I/O error")
	}
	finish(ctx, "200")

	httpHeaders["ETag"] = etag(b)
	if headerVal, ok := headerContentType(header); ok {
		httpHeaders["Content-Type"] = headerVal
	}
	if headerVal, ok := headerContentEncoding(header.TileCompression); ok {
		httpHeaders["Content-Encoding"] = headerVal
	}
	return 200, httpHeaders, b
}

var tilePattern = regexp.MustCompile(`^\/([-A-Za-z0-9_\/!-_\.\*'\(\)']+)\/(\d+)\/(\d+)\/(\d+)\.([a-z]+)$`)
var metadataPattern = regexp.MustCompile(`^\/([-A-Za-z0-9_\/!-_\.\*'\(\)']+)\/metadata$`)
var tileJSONPattern = regexp.MustCompile(`^\/([-A-Za-z0-9_\/!-_\.\*'\(\)']+)\.json$`)

func parseTilePath(path string) (bool, string, uint8, uint32, uint32, string) {
	if res := tilePattern.FindStringSubmatch(path); res != nil {
		name := res[1]
		z, errZ := strconv.ParseUint(res[2], 10, 8)
		x, errX := strconv.ParseUint(res[3], 10, 32)
		y, errY := strconv.ParseUint(res[4], 10, 32)
		if errZ != nil || errX != nil || errY != nil {
			return false, "", 0, 0, 0, ""
		}
		ext := res[5]
		return true, name, uint8(z), uint32(x), uint32(y), ext
	}
	return false, "", 0, 0, 0, ""
}

func parseTilejsonPath(path string) (bool, string) {
	if res := tileJSONPattern.FindStringSubmatch(path); res != nil {
		name := res[1]
		return true, name
	}
	return false, ""
}

func parseMetadataPath(path string) (bool, string) {
	if res := metadataPattern.FindStringSubmatch(path); res != nil {
		name := res[1]
		return true, name
	}
	return false, ""
}

// Get answers a request path with a status code, response headers and body.
func (server *Server) Get(ctx context.Context, path string) (int, map[string]string, []byte) {
	status, headers, body, _, _ := server.get(ctx, path)
	return status, headers, body
}

func (server *Server) get(ctx context.Context, path string) (status int, headers map[string]string, body []byte, archive string, handler string) {
	httpHeaders := make(map[string]string)

	if ok, key, z, x, y, ext := parseTilePath(path); ok {
		status, headers, body = server.getTile(ctx, httpHeaders, key, z, x, y, ext)
		return status, headers, body, key, "tile"
	}
	if ok, key := parseTilejsonPath(path); ok {
		status, headers, body = server.getTileJSON(ctx, httpHeaders, key)
		return status, headers, body, key, "tilejson"
	}
	if ok, key := parseMetadataPath(path); ok {
		status, headers, body = server.getMetadata(ctx, httpHeaders, key)
		return status, headers, body, key, "metadata"
	}

	if path == "/" {
		return 204, httpHeaders, []byte{}, "", "/"
	}

	return 404, httpHeaders, []byte("Path not found"), "", "404"
}

// ServeHTTP implements http.Handler. Tiles whose ETag matches If-None-Match
// answer 304.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	finish := server.metrics.startRequest()
	status, headers, body, archive, handler := server.get(r.Context(), r.URL.Path)

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if etag, ok := headers["ETag"]; ok && status == 200 && r.Header.Get("If-None-Match") == etag {
		status = http.StatusNotModified
		body = nil
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(body)
	}

	finish(r.Context(), archive, handler, status, len(body))
	server.logger.Debug("served",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int("bytes", len(body)))
}
