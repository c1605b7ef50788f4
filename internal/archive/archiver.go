// Package archive uploads refresh snapshots to S3-compatible object storage
// for long-term retention. It is entirely optional: when not configured the
// refresh cycle runs without it, and upload failures are logged but never
// surface into the cache lifecycle.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/bleedingdev/usagedeck/internal/usage"
)

const manifestObject = "manifest.json"

// Archiver writes gzipped snapshot JSON objects to a bucket and maintains a
// manifest listing every archived object.
type Archiver struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, bucket, accessKey, secretKey string, useSSL bool) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	log.WithFields(log.Fields{"endpoint": endpoint, "bucket": bucket}).Info("Snapshot archive enabled")
	return &Archiver{client: client, bucket: bucket}, nil
}

// Store uploads one snapshot and appends it to the manifest.
func (a *Archiver) Store(ctx context.Context, snap *usage.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	object := fmt.Sprintf("snapshots/%s.json.gz", snap.GeneratedAt.UTC().Format("2006-01-02T15-04-05Z"))
	_, err = a.client.PutObject(ctx, a.bucket, object, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	if err := a.updateManifest(ctx, object, snap); err != nil {
		return err
	}

	log.WithField("object", object).Debug("Snapshot archived")
	return nil
}

// StoreAsync archives a snapshot in the background, logging failures.
// Plugged into the cache controller's post-refresh hook.
func (a *Archiver) StoreAsync(snap *usage.Snapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Store(ctx, snap); err != nil {
			log.WithError(err).Error("Failed to archive snapshot")
		}
	}()
}

func (a *Archiver) updateManifest(ctx context.Context, object string, snap *usage.Snapshot) error {
	manifest := []byte(`{"archives":[]}`)
	obj, err := a.client.GetObject(ctx, a.bucket, manifestObject, minio.GetObjectOptions{})
	if err == nil {
		if data, readErr := io.ReadAll(obj); readErr == nil && len(data) > 0 {
			manifest = data
		}
		obj.Close()
	}

	manifest, err = AppendManifestEntry(manifest, object, snap)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, a.bucket, manifestObject, bytes.NewReader(manifest), int64(len(manifest)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}
	return nil
}

// AppendManifestEntry adds one archive entry to the manifest document.
func AppendManifestEntry(manifest []byte, object string, snap *usage.Snapshot) ([]byte, error) {
	entry := map[string]interface{}{
		"object":       object,
		"generated_at": snap.GeneratedAt.UTC().Format(time.RFC3339),
		"credentials":  snap.TotalCredentials,
		"total_used":   snap.Totals.TotalUsed,
	}
	out, err := sjson.SetBytes(manifest, "archives.-1", entry)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest entry: %w", err)
	}
	return out, nil
}
