// Package s3fetch moves containers and record inputs to and from S3.
package s3fetch

import (
	"errors"
	"fmt"
	"strings"
)

// IsS3URI reports whether s names an S3 object rather than a local path.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://") || strings.HasPrefix(s, "arn:")
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key components.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}

// ParseObject resolves an object location given as s3://bucket/key or as
// an S3 object ARN (arn:aws:s3:::bucket/key). The key must be non-empty.
func ParseObject(s string) (bucket, key string, err error) {
	if strings.HasPrefix(s, "arn:") {
		bucket, key, err = parseObjectARN(s)
	} else {
		bucket, key, err = ParseS3URI(s)
	}
	if err != nil {
		return "", "", err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid S3 object %q: missing object key", s)
	}
	return bucket, key, nil
}

// FormatS3URI is the inverse of ParseS3URI.
func FormatS3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseBucketIdentifier extracts the bucket name from either a plain bucket
// name or an S3 bucket ARN:
//   - Plain bucket name: "my-bucket"
//   - S3 bucket ARN: "arn:aws:s3:::my-bucket"
func ParseBucketIdentifier(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket identifier")
	}
	if strings.HasPrefix(bucketOrARN, "arn:") {
		bucket, _, err := parseObjectARN(bucketOrARN)
		return bucket, err
	}
	if strings.Contains(bucketOrARN, "://") {
		return "", fmt.Errorf("invalid bucket identifier %q: looks like a URI, use ParseS3URI instead", bucketOrARN)
	}
	return bucketOrARN, nil
}

// parseObjectARN splits arn:partition:s3:::bucket[/key]. Region and account
// are empty for S3 bucket and object ARNs.
func parseObjectARN(arn string) (bucket, key string, err error) {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return "", "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", arn)
	}
	if parts[0] != "arn" {
		return "", "", fmt.Errorf("invalid ARN %q: must start with 'arn:'", arn)
	}
	if parts[2] != "s3" {
		return "", "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", arn, parts[2])
	}

	resource := parts[5]
	bucket, key, _ = strings.Cut(resource, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", arn)
	}
	return bucket, key, nil
}
