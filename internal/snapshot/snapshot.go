// Package snapshot resolves the one startup snapshot source this
// process loads from — a local RDB-shaped file or an S3 object — into
// the record stream internal/store.ApplySnapshot consumes, and encodes
// that same record stream for the live FULLRESYNC transfer between a
// primary and a freshly connecting replica.
//
// The on-disk/wire format here is this project's own: a magic header
// followed by length-prefixed (key, value, expiresUnixMilli) records.
// Real RDB byte-for-byte compatibility is explicitly out of scope (see
// spec's "Format specifics of that file are out of scope for this
// core"); both ends of our own FULLRESYNC transfer are our own code, so
// there is no interop requirement to satisfy with a heavier parser.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/redistore/internal/store"
)

var magic = [4]byte{'R', 'S', 'D', '1'}

// Encode serializes records into this project's snapshot wire format,
// gzip-framed with pgzip so a large snapshot compresses across multiple
// cores rather than serializing the whole payload through one.
func Encode(records []store.SnapshotRecord) []byte {
	var raw bytes.Buffer
	raw.Write(magic[:])
	binary.Write(&raw, binary.BigEndian, uint32(len(records)))
	for _, r := range records {
		writeLenPrefixed(&raw, []byte(r.Key))
		writeLenPrefixed(&raw, r.Value)
		var ms int64
		if !r.Expires.IsZero() {
			ms = r.Expires.UnixMilli()
		}
		binary.Write(&raw, binary.BigEndian, ms)
	}

	var compressed bytes.Buffer
	gw := pgzip.NewWriter(&compressed)
	gw.Write(raw.Bytes())
	gw.Close()
	return compressed.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

// Decode parses bytes produced by Encode into a record stream. An empty
// input decodes to zero records.
func Decode(data []byte) ([]store.SnapshotRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	gr, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot: not a gzip-framed snapshot: %w", err)
	}
	defer gr.Close()
	r := bufio.NewReader(gr)

	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, fmt.Errorf("snapshot: reading magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("snapshot: bad magic %q, not a recognized snapshot", got)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("snapshot: reading record count: %w", err)
	}

	records := make([]store.SnapshotRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("snapshot: reading key %d: %w", i, err)
		}
		val, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("snapshot: reading value %d: %w", i, err)
		}
		var ms int64
		if err := binary.Read(r, binary.BigEndian, &ms); err != nil {
			return nil, fmt.Errorf("snapshot: reading expiration %d: %w", i, err)
		}
		rec := store.SnapshotRecord{Key: string(key), Value: val}
		if ms != 0 {
			rec.Expires = time.UnixMilli(ms)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readLenPrefixed(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Resolve loads the configured snapshot source: a local dir/dbfilename
// path, or an s3://bucket/key object when dbfilename carries that
// scheme. A missing local file or missing S3 object is treated as an
// empty database; any other read failure is fatal, matching the
// "unreadable/corrupt snapshot is fatal to startup" policy.
func Resolve(ctx context.Context, dir, dbfilename string) ([]store.SnapshotRecord, error) {
	if dbfilename == "" {
		return nil, nil
	}
	if strings.HasPrefix(dbfilename, "s3://") {
		bucket, key, err := splitS3URI(dbfilename)
		if err != nil {
			return nil, err
		}
		return loadS3(ctx, bucket, key)
	}
	return loadLocal(filepath.Join(dir, dbfilename))
}

func splitS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("snapshot: invalid s3 uri %q, expected s3://bucket/key", uri)
	}
	return parts[0], parts[1], nil
}

func loadLocal(path string) ([]store.SnapshotRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s is corrupt: %w", path, err)
	}
	return records, nil
}

func loadS3(ctx context.Context, bucket, key string) ([]store.SnapshotRecord, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: fetching s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading s3://%s/%s body: %w", bucket, key, err)
	}
	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: s3://%s/%s is corrupt: %w", bucket, key, err)
	}
	return records, nil
}

// Dump renders the current contents of s as a snapshot blob, for
// sending to a replica during FULLRESYNC.
func Dump(s *store.Store) []byte {
	return Encode(s.Dump())
}
