package ingest

import (
	"fmt"
	"strings"
)

// metaFieldPrefix namespaces flattened metadata fields in the index so they
// never collide with the fixed fragment fields.
const metaFieldPrefix = "meta_"

// FlattenMetadata converts a schema-less metadata map into flat string
// fields suitable for the index:
//
//   - scalar values become "meta_<key>"
//   - nested maps are flattened recursively, joining path segments with "_"
//   - list values are serialized as comma-joined tag strings
//
// The function is pure; it never mutates its input.
func FlattenMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	flattenInto(out, metaFieldPrefix, meta)
	return out
}

func flattenInto(out map[string]string, prefix string, meta map[string]any) {
	for key, value := range meta {
		field := prefix + key
		switch v := value.(type) {
		case map[string]any:
			flattenInto(out, field+"_", v)
		case map[string]string:
			for k, s := range v {
				out[field+"_"+k] = s
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, scalarString(item))
			}
			out[field] = strings.Join(parts, ",")
		case []string:
			out[field] = strings.Join(v, ",")
		default:
			out[field] = scalarString(v)
		}
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case float64:
		// JSON numbers decode as float64; keep integers free of a trailing ".0".
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(v)
	}
}
