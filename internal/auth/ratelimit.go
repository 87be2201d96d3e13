package auth

import (
	"fmt"
	"time"
)

// MakeWindowKey buckets now into a fixed-size window and returns both the
// counter key (namespace:subject:bucket) and the instant that bucket
// expires, matching the reference rate-limit counter's bucketing rule.
func MakeWindowKey(namespace, subject string, now time.Time, windowSeconds int) (key string, expiresAt time.Time) {
	epoch := now.Unix()
	bucket := epoch / int64(windowSeconds)
	bucketStart := bucket * int64(windowSeconds)
	key = fmt.Sprintf("%s:%s:%d", namespace, subject, bucket)
	expiresAt = time.Unix(bucketStart+int64(windowSeconds), 0).UTC()
	return key, expiresAt
}
