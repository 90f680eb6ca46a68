// Package oid implements the type-prefixed external identifier scheme.
// External ids look like "ch_65f2a8b1c9d0e4f5a6b7c8d9": a short type prefix,
// an underscore, and the 24-hex internal id. Embedded entities always carry
// the prefixed form; bare hex is tolerated on top-level input for
// backwards compatibility but never emitted.
package oid

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Known prefixes.
const (
	PrefixSession = "se"
	PrefixMessage = "msg"
	PrefixSegment = "ch"
	PrefixEvent   = "evt"
	PrefixProject = "prj"
)

var hex24 = regexp.MustCompile(`^[0-9a-f]{24}$`)

// InvalidOidError reports a malformed or disallowed identifier.
type InvalidOidError struct {
	Value  string
	Reason string
}

func (e *InvalidOidError) Error() string {
	return fmt.Sprintf("invalid oid %q: %s", e.Value, e.Reason)
}

// Oid is a parsed external identifier.
type Oid struct {
	Prefix string
	ID     string // 24-hex internal id
}

// String renders the canonical prefixed form.
func (o Oid) String() string {
	return o.Prefix + "_" + o.ID
}

// Format builds the canonical prefixed form from an internal id.
func Format(prefix, internalID string) (string, error) {
	if !hex24.MatchString(internalID) {
		return "", &InvalidOidError{Value: internalID, Reason: "internal id is not 24-char lowercase hex"}
	}
	return prefix + "_" + internalID, nil
}

// New mints a fresh oid with the given prefix.
func New(prefix string) Oid {
	return Oid{Prefix: prefix, ID: bson.NewObjectID().Hex()}
}

// ParseTopLevel accepts either "<prefix>_<hex24>" or a bare hex24 id.
// Bare hex is assigned the first allowed prefix; it exists only so old
// clients that stored raw internal ids keep working.
func ParseTopLevel(value string, allowedPrefixes ...string) (Oid, error) {
	if hex24.MatchString(value) {
		if len(allowedPrefixes) == 0 {
			return Oid{}, &InvalidOidError{Value: value, Reason: "no allowed prefixes"}
		}
		return Oid{Prefix: allowedPrefixes[0], ID: value}, nil
	}
	return ParseEmbedded(value, allowedPrefixes...)
}

// ParseEmbedded requires the fully prefixed form. Embedded ids must be
// self-describing: once a segment id is stored inside a document there is
// no surrounding context to recover its type from.
func ParseEmbedded(value string, allowedPrefixes ...string) (Oid, error) {
	prefix, id, ok := strings.Cut(value, "_")
	if !ok || prefix == "" {
		return Oid{}, &InvalidOidError{Value: value, Reason: "missing type prefix"}
	}
	if !hex24.MatchString(id) {
		return Oid{}, &InvalidOidError{Value: value, Reason: "id part is not 24-char lowercase hex"}
	}
	for _, allowed := range allowedPrefixes {
		if prefix == allowed {
			return Oid{Prefix: prefix, ID: id}, nil
		}
	}
	return Oid{}, &InvalidOidError{Value: value, Reason: fmt.Sprintf("prefix %q not allowed", prefix)}
}

// IsCanonical reports whether value is a well-formed oid with the given prefix.
func IsCanonical(value, prefix string) bool {
	parsed, err := ParseEmbedded(value, prefix)
	return err == nil && parsed.Prefix == prefix
}
