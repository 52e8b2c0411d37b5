package objectclient

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ObjectClient defines interactions with S3 or any object storage. The crawl
// pipeline uses it as the durable staging location for batch vector imports.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ParseURL extracts the bucket and key from a virtual-hosted-style object URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/vector-updates/x.json
func ParseURL(u string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	hostPath := strings.SplitN(trimmed, "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("cannot parse object URL %q", u)
	}
	return bucket, key, nil
}
