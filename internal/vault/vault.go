// Package vault is the artifact store (spec.md §6.7): generated source
// text is stored under a per-session key, with its sha256 checksum kept as
// object metadata and returned in the Ref. No HAR or cookie snapshots are
// stored; HARSnapshotKey only names a key. Adapted from the teacher's
// pkg/vault, which backed the same role for recorded LLM traffic.
package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harvestcore/harvest/internal/errs"
)

// Ref identifies a stored blob: its URI, its sha256 checksum (hex), and
// its byte size.
type Ref struct {
	URI      string
	Checksum string
	Size     int64
}

// Client is a minio-backed implementation of the vault contract. A nil
// *Client disables persistence without failing callers that store — Store
// on a nil receiver is a no-op returning a zero Ref and nil error, while
// Fetch returns an IoError since nothing was stored, mirroring the
// teacher's "works without it" posture.
type Client struct {
	mc     *minio.Client
	bucket string
}

// Options configures a Client.
type Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// New constructs a Client, creating bucket if it does not already exist.
func New(ctx context.Context, opts Options) (*Client, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "vault: constructing minio client")
	}
	exists, err := mc.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "vault: checking bucket %s", opts.Bucket)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errs.Wrap(errs.KindIoError, err, "vault: creating bucket %s", opts.Bucket)
		}
	}
	return &Client{mc: mc, bucket: opts.Bucket}, nil
}

// Store writes data under key, keyed by sha256 checksum for verification.
func (c *Client) Store(ctx context.Context, key string, data []byte) (Ref, error) {
	if c == nil {
		return Ref{}, nil
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"sha256": checksum},
	})
	if err != nil {
		return Ref{}, errs.Wrap(errs.KindIoError, err, "vault: storing %s", key)
	}
	return Ref{
		URI:      fmt.Sprintf("vault://%s/%s", c.bucket, key),
		Checksum: checksum,
		Size:     int64(len(data)),
	}, nil
}

// Fetch reads the blob stored under key.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, errs.New(errs.KindIoError, "vault: not configured")
	}
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "vault: fetching %s", key)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "vault: reading %s", key)
	}
	return buf.Bytes(), nil
}

// VerifyChecksum reports whether data's sha256 matches ref.Checksum.
func VerifyChecksum(ref Ref, data []byte) bool {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == ref.Checksum
}

// SessionKey builds the conventional vault key for a session's generated
// source artifact.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/generated-source", sessionID)
}

// HARSnapshotKey builds the conventional vault key for a session's
// ingested HAR snapshot.
func HARSnapshotKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/ingest.har", sessionID)
}
