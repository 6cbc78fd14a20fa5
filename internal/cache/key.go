// Package cache provides the namespaced, TTL'd cache service backing
// the annotation sources' per-gene result cache. The HTTP substrate in
// pkg/external does not use it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Normalize produces a stable cache key from an arbitrary key value: a
// string is stripped of leading/trailing whitespace, a map[string]string
// is serialized with sorted keys so equivalent parameter sets always
// hash identically regardless of iteration order, and any other
// compound value (slice, struct, nested map) is canonicalized to JSON
// with sorted keys before hashing.
func Normalize(key any) string {
	switch v := key.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]string:
		return normalizeMap(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return normalizeCompound(v)
	}
}

func normalizeMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(m[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeCompound canonicalizes an arbitrary list/struct/map value to
// stable JSON before hashing. encoding/json already sorts map[string]*
// keys on marshal; round-tripping through a generic interface{} gets the
// same sorted-key treatment for struct fields and nested values, so two
// equivalent compound keys always hash the same regardless of field or
// construction order.
func normalizeCompound(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Sprintf("%v", v)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	h := sha256.New()
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// NamespacedKey joins a namespace and a normalized key into the final
// Redis key, e.g. "annotation:gnomad:TTL1".
func NamespacedKey(namespace, key string) string {
	return namespace + ":" + key
}
