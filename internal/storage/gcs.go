package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage stores segments as objects in a Google Cloud Storage
// bucket, under an optional prefix (baseDir), for deployments that
// packaged segments out to object storage instead of local disk.
type GCSStorage struct {
	client     *storage.Client
	bucketName string
	baseDir    string
	ctx        context.Context
}

// NewGCSStorage opens a client for bucketName and verifies it's
// reachable before returning, so a misconfigured bucket fails at
// startup rather than on the first segment write.
func NewGCSStorage(ctx context.Context, projectID, bucketName, baseDir string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: creating client: %w", err)
	}

	bucket := client.Bucket(bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs storage: accessing bucket %s: %w", bucketName, err)
	}

	return &GCSStorage{client: client, bucketName: bucketName, baseDir: baseDir, ctx: ctx}, nil
}

func (s *GCSStorage) object(path string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucketName).Object(s.fullPath(path))
}

func (s *GCSStorage) Write(path string, data []byte) error {
	w := s.object(path).NewWriter(s.ctx)
	w.ContentType = segmentContentType(path)
	w.CacheControl = segmentCacheControl(path)

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs storage: writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage: closing writer for %s: %w", path, err)
	}
	return nil
}

func (s *GCSStorage) Read(path string) ([]byte, error) {
	r, err := s.object(path).NewReader(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: opening %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: reading %s: %w", path, err)
	}
	return data, nil
}

// ReadSeeker buffers the whole object in memory to support Seek: GCS
// object reads aren't natively seekable without re-issuing a
// byte-range read per Seek call, which isn't worth it for segment
// sizes (seconds of media, not a VOD-length asset).
func (s *GCSStorage) ReadSeeker(path string) (io.ReadSeeker, error) {
	r, err := s.object(path).NewReader(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: opening %s: %w", path, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("gcs storage: buffering %s: %w", path, err)
	}
	return &bytesReadSeeker{data: data}, nil
}

func (s *GCSStorage) Delete(path string) error {
	if err := s.object(path).Delete(s.ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("gcs storage: deleting %s: %w", path, err)
	}
	return nil
}

func (s *GCSStorage) Exists(path string) (bool, error) {
	_, err := s.object(path).Attrs(s.ctx)
	switch err {
	case nil:
		return true, nil
	case storage.ErrObjectNotExist:
		return false, nil
	default:
		return false, fmt.Errorf("gcs storage: checking %s: %w", path, err)
	}
}

func (s *GCSStorage) List(dir string) ([]string, error) {
	prefix := s.fullPath(dir)
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	it := s.client.Bucket(s.bucketName).Objects(s.ctx, &storage.Query{Prefix: prefix})

	var files []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs storage: listing %s: %w", dir, err)
		}

		name := attrs.Name
		if len(name) > len(prefix) {
			name = name[len(prefix):]
		}
		if name != "" && name[len(name)-1] != '/' {
			files = append(files, name)
		}
	}
	return files, nil
}

// Close releases the underlying GCS client. The local backend has no
// equivalent since it owns no network resources.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// SignedURL returns a time-limited URL a client can fetch path from
// directly, bypassing this process — used when a deployment wants to
// hand HLS segment delivery off to GCS's own edge rather than proxying
// every byte through streamcored.
func (s *GCSStorage) SignedURL(path string, expiration time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiration),
	}
	url, err := s.client.Bucket(s.bucketName).SignedURL(s.fullPath(path), opts)
	if err != nil {
		return "", fmt.Errorf("gcs storage: signing URL for %s: %w", path, err)
	}
	return url, nil
}

func (s *GCSStorage) fullPath(path string) string {
	if s.baseDir == "" {
		return path
	}
	return s.baseDir + "/" + path
}

// bytesReadSeeker adapts an in-memory byte slice to io.ReadSeeker.
type bytesReadSeeker struct {
	data []byte
	pos  int64
}

func (b *bytesReadSeeker) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *bytesReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("bytesReadSeeker: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("bytesReadSeeker: negative position")
	}
	b.pos = newPos
	return newPos, nil
}
