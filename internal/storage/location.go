package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	SchemeS3  = "s3"
	SchemeS3A = "s3a"
)

var ErrInvalidLocation = errors.New("invalid location")

var locationPattern = regexp.MustCompile(`^(s3a?)://([a-z\d.-]*)(?:/(.*))?$`)

// Location is an object-store prefix or object address of the form
// <scheme>://<bucket>/<key>.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func ParseLocation(raw string) (Location, error) {
	match := locationPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return Location{}, fmt.Errorf("%w: %q can't be parsed", ErrInvalidLocation, raw)
	}
	if match[2] == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidLocation, raw)
	}
	return Location{Scheme: match[1], Bucket: match[2], Key: match[3]}, nil
}

func MustParseLocation(raw string) Location {
	loc, err := ParseLocation(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// Resolve appends parts to the key with exactly one slash at every join point.
func (l Location) Resolve(parts ...string) Location {
	all := make([]string, 0, len(parts)+1)
	all = append(all, l.Key)
	all = append(all, parts...)
	l.Key = strings.TrimLeft(JoinPath(all...), "/")
	return l
}

// ResolveTime appends t formatted with a Go time layout, e.g. "date=2006-01-02".
func (l Location) ResolveTime(layout string, t time.Time) Location {
	return l.Resolve(t.Format(layout))
}

// DropTrailingSlash removes one trailing slash from the key.
func (l Location) DropTrailingSlash() Location {
	l.Key = strings.TrimSuffix(l.Key, "/")
	return l
}

// ListPrefix is the key prefix used to enumerate objects under the location.
func (l Location) ListPrefix() string {
	if l.Key == "" || strings.HasSuffix(l.Key, "/") {
		return l.Key
	}
	return l.Key + "/"
}

func (l Location) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = SchemeS3
	}
	return scheme + "://" + l.Bucket + "/" + l.Key
}

// Equal compares bucket and key; the scheme variants address the same object.
func (l Location) Equal(other Location) bool {
	return l.Bucket == other.Bucket && l.Key == other.Key
}
