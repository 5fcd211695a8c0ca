package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"oea/internal/logging"
)

// GCSOptions configures the Cloud Storage backend.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	// Root is the local directory whose layout is mirrored under Prefix.
	Root   string
	Logger *slog.Logger
}

// GCS mirrors artifacts into a Cloud Storage bucket. Local copies are kept so
// workers and the aggregator read plain files.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	root   string
	logger *slog.Logger
}

// NewGCS opens a storage client. An empty CredentialsFile uses application
// default credentials.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("gcs staging requires a bucket")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", opts.CredentialsFile)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GCS{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		root:   opts.Root,
		logger: logging.NewComponentLogger(logger, "staging"),
	}, nil
}

func (g *GCS) object(local string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.objectName(local))
}

func (g *GCS) objectName(local string) string {
	key := relativeKey(g.root, local)
	if g.prefix == "" {
		return key
	}
	return path.Join(g.prefix, key)
}

func (g *GCS) uri(local string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, g.objectName(local))
}

func (g *GCS) Fetch(ctx context.Context, local string) error {
	if ok, err := localExists(local); err != nil || ok {
		return err
	}
	reader, err := g.object(local).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("fetch %s: %w", g.uri(local), fs.ErrNotExist)
		}
		return fmt.Errorf("open %s: %w", g.uri(local), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", local, err)
	}
	tmp := local + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", local, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", g.uri(local), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", g.uri(local), err)
	}
	if err := os.Rename(tmp, local); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fetch %s: %w", local, err)
	}
	g.logger.Debug("fetched artifact", logging.String("uri", g.uri(local)), logging.String("path", local))
	return nil
}

func (g *GCS) Publish(ctx context.Context, local string) error {
	in, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("publish %s: %w", local, err)
	}
	defer in.Close()

	writer := g.object(local).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(writer, in); err != nil {
		_ = writer.Close()
		return fmt.Errorf("upload %s to %s: %w", local, g.uri(local), err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", g.uri(local), err)
	}
	g.logger.Debug("published artifact", logging.String("uri", g.uri(local)), logging.String("path", local))
	return nil
}

func (g *GCS) Exists(ctx context.Context, local string) (bool, error) {
	if ok, err := localExists(local); err != nil || ok {
		return ok, err
	}
	_, err := g.object(local).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", g.uri(local), err)
	}
	return true, nil
}

func (g *GCS) Remove(ctx context.Context, local string) error {
	if err := removeLocal(local); err != nil {
		return fmt.Errorf("remove %s: %w", local, err)
	}
	if err := g.object(local).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", g.uri(local), err)
	}
	return nil
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
