package pmtiles

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Bucket is a keyed store of archives that serves byte ranges: a directory,
// an HTTP server or a gocloud blob bucket.
type Bucket interface {
	Close() error
	NewRangeReader(ctx context.Context, key string, offset int64, length int64) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
}

// etag quotes the little-endian hex xxhash of data.
func etag(data []byte) string {
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(data))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// FileBucket serves archives from a local directory.
type FileBucket struct {
	dir string
}

func NewFileBucket(dir string) *FileBucket {
	return &FileBucket{dir: dir}
}

type sectionCloser struct {
	*io.SectionReader
	file *os.File
}

func (s sectionCloser) Close() error {
	return s.file.Close()
}

// NewRangeReader streams the range from the open file. Ranges past the end of
// the file are truncated.
func (b FileBucket) NewRangeReader(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(b.dir, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	return sectionCloser{io.NewSectionReader(f, offset, length), f}, nil
}

func (b FileBucket) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(filepath.Join(b.dir, filepath.FromSlash(key)))
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory: %w", key, fs.ErrNotExist)
	}
	return info.Size(), nil
}

func (FileBucket) Close() error {
	return nil
}

// HTTPClient is the part of *http.Client an HTTPBucket uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPBucket reads archives over HTTP range requests.
type HTTPBucket struct {
	baseURL string
	client  HTTPClient
}

// NewHTTPBucket returns an HTTPBucket rooted at baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPBucket(baseURL string, client HTTPClient) HTTPBucket {
	if client == nil {
		client = http.DefaultClient
	}
	return HTTPBucket{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (b HTTPBucket) do(ctx context.Context, method, key string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: HTTP status %d", method, key, resp.StatusCode)
	}
}

func (b HTTPBucket) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		// a zero-length Range is unsatisfiable
		return io.NopCloser(strings.NewReader("")), nil
	}
	header := http.Header{"Range": {fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)}}
	resp, err := b.do(ctx, http.MethodGet, key, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK && offset > 0 {
		// the server sent the whole object
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, length), resp.Body}, nil
}

func (b HTTPBucket) Size(ctx context.Context, key string) (int64, error) {
	resp, err := b.do(ctx, http.MethodHead, key, nil)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("no content length for %s", key)
	}
	return resp.ContentLength, nil
}

func (HTTPBucket) Close() error {
	return nil
}

// BucketAdapter wraps a gocloud blob bucket.
type BucketAdapter struct {
	Bucket *blob.Bucket
}

func (ba BucketAdapter) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return ba.Bucket.NewRangeReader(ctx, key, offset, length, nil)
}

func (ba BucketAdapter) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := ba.Bucket.Attributes(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return 0, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	}
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (ba BucketAdapter) Close() error {
	return ba.Bucket.Close()
}

// NormalizeBucketKey splits a local path or URL into a bucket URL and key.
func NormalizeBucketKey(bucket string, prefix string, key string) (string, string, error) {
	if bucket == "" {
		if strings.HasPrefix(key, "http") {
			u, err := url.Parse(key)
			if err != nil {
				return "", "", err
			}
			dir, file := path.Split(u.Path)
			dir = strings.TrimSuffix(dir, "/")
			return u.Scheme + "://" + u.Host + dir, file, nil
		}
		fileprotocol := "file://"
		if string(os.PathSeparator) != "/" {
			fileprotocol += "/"
		}
		if prefix != "" {
			abs, err := filepath.Abs(prefix)
			if err != nil {
				return "", "", err
			}
			return fileprotocol + filepath.ToSlash(abs), key, nil
		}
		abs, err := filepath.Abs(key)
		if err != nil {
			return "", "", err
		}
		return fileprotocol + filepath.ToSlash(filepath.Dir(abs)), filepath.Base(abs), nil
	}
	return bucket, key, nil
}

// OpenBucket opens HTTP(S) URLs, file:// URLs and plain directory paths
// directly and everything else through gocloud. The gocloud drivers must be
// registered by the caller. bucketPrefix selects a directory within the
// bucket; "", "." and "/" mean the bucket root.
func OpenBucket(ctx context.Context, bucketURL string, bucketPrefix string) (Bucket, error) {
	sub := strings.TrimPrefix(path.Clean("/"+bucketPrefix), "/")

	switch {
	case strings.HasPrefix(bucketURL, "http://"), strings.HasPrefix(bucketURL, "https://"):
		if sub != "" {
			bucketURL = strings.TrimSuffix(bucketURL, "/") + "/" + sub
		}
		return NewHTTPBucket(bucketURL, nil), nil
	case strings.HasPrefix(bucketURL, "file://"):
		fileprotocol := "file://"
		if string(os.PathSeparator) != "/" {
			fileprotocol += "/"
		}
		dir := filepath.FromSlash(strings.Replace(bucketURL, fileprotocol, "", 1))
		return NewFileBucket(filepath.Join(dir, filepath.FromSlash(sub))), nil
	case !strings.Contains(bucketURL, "://"):
		return NewFileBucket(filepath.Join(bucketURL, filepath.FromSlash(sub))), nil
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	if sub != "" {
		bucket = blob.PrefixedBucket(bucket, sub+"/")
	}
	return BucketAdapter{bucket}, nil
}

type bucketReaderAt struct {
	ctx    context.Context
	bucket Bucket
	key    string
	size   int64
}

// NewBucketReaderAt exposes one object of a bucket as an io.ReaderAt so it can
// back an Archive. Every ReadAt issues a single range request under ctx.
func NewBucketReaderAt(ctx context.Context, bucket Bucket, key string, size int64) io.ReaderAt {
	return &bucketReaderAt{ctx: ctx, bucket: bucket, key: key, size: size}
}

func (b *bucketReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrRangeOutOfBounds, off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= b.size {
		return 0, io.EOF
	}
	length := min(int64(len(p)), b.size-off)
	r, err := b.bucket.NewRangeReader(b.ctx, b.key, off, length)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n, err := io.ReadFull(r, p[:length])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
