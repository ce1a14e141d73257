package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const scheme = "s3://"

var (
	bucketPattern        = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._=-]{0,127}$`)
)

// Location addresses one object, or a prefix when Key ends in "/".
type Location struct {
	Bucket string
	Key    string
}

func NewLocation(bucket, key string) (Location, error) {
	bucket = strings.TrimSpace(bucket)
	if !bucketPattern.MatchString(bucket) {
		return Location{}, fmt.Errorf("invalid bucket name: %q", bucket)
	}
	return Location{Bucket: bucket, Key: strings.TrimPrefix(strings.TrimSpace(key), "/")}, nil
}

// ParseLocation parses an s3://bucket/key URI.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, scheme) {
		return Location{}, fmt.Errorf("location %q must start with %s", uri, scheme)
	}
	rest := strings.TrimPrefix(uri, scheme)
	bucket, key, _ := strings.Cut(rest, "/")
	return NewLocation(bucket, key)
}

func (l Location) String() string {
	return scheme + l.Bucket + "/" + l.Key
}

func (l Location) IsPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

// Join appends path elements to the key. Joining onto a prefix keeps it an
// object location unless the last element ends in "/".
func (l Location) Join(elem ...string) Location {
	if len(elem) == 0 {
		return l
	}
	trailing := strings.HasSuffix(elem[len(elem)-1], "/")
	joined := path.Join(append([]string{l.Key}, elem...)...)
	joined = strings.TrimPrefix(joined, "/")
	if trailing {
		joined += "/"
	}
	return Location{Bucket: l.Bucket, Key: joined}
}

// BuildStagingKey returns folder/fileName after validating every component.
func BuildStagingKey(folder, fileName string) (string, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	parts := []string{}
	if folder != "" {
		parts = strings.Split(folder, "/")
	}
	for _, part := range parts {
		if err := validatePathComponent(part, "folder component"); err != nil {
			return "", err
		}
	}
	if err := validatePathComponent(fileName, "file name"); err != nil {
		return "", err
	}
	return path.Join(append(parts, fileName)...), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
