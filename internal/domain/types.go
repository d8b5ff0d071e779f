package domain

// Document is an unstructured JSON-compatible container used for runtime
// configuration snapshots, step inputs/outputs, and component side effects.
type Document map[string]any

// Clone returns a copy that shares no mutable state with d. Nested maps and
// slices are copied recursively so callers can keep mutating their own value
// after handing it to a store.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		return Document(val).Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}
