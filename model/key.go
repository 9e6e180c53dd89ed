package model

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Kind identifies a resource family. The kind is the prefix of a resource
// key up to the first ':' and selects the TTL policy and remote endpoint.
type Kind string

const (
	KindCurrent  Kind = "current"
	KindForecast Kind = "forecast24h"
	KindGrid     Kind = "grid"
)

var ErrEmptyKey = errors.New("empty resource key")

// Key builds a resource key for a kind and qualifier, e.g.
// Key(KindCurrent, "Delhi") -> "current:Delhi".
func Key(kind Kind, qualifier string) string {
	return fmt.Sprintf("%s:%s", kind, qualifier)
}

// KindOf extracts the resource kind from a key. Keys without a kind
// separator report an empty kind.
func KindOf(key string) Kind {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return Kind(key[:i])
	}
	return ""
}

// Qualifier returns the part of the key after the kind separator.
func Qualifier(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return ""
}

// MatchKey reports whether key matches pattern. A pattern containing glob
// metacharacters is matched with path.Match semantics; any other pattern
// matches keys it prefixes.
func MatchKey(pattern, key string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, key)
		return err == nil && ok
	}
	return strings.HasPrefix(key, pattern)
}
