package onnx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// LabelKeys are the metadata keys whose values may hold class labels as JSON.
var LabelKeys = []string{"labels", "class_labels", "classes"}

// ErrLabelFormat is set on ClassLabels whose value is not a JSON list or object.
var ErrLabelFormat = errors.New("unrecognized class label format")

// LabelEntry maps a class index (list form) or key (object form) to its label.
type LabelEntry struct {
	Key   string
	Value string
}

// ClassLabels is a decoded class-label metadata entry.
type ClassLabels struct {
	Key     string // metadata key
	List    bool   // true for a JSON list, Entries keys are then indices
	Entries []LabelEntry
	Err     error // wraps ErrLabelFormat when the value could not be decoded
}

// ParseLabels decodes every label metadata entry in props, in file order.
func ParseLabels(props []StringStringEntry) []ClassLabels {
	var labels []ClassLabels
	for _, kv := range props {
		if slices.Contains(LabelKeys, kv.Key) {
			labels = append(labels, decodeLabels(kv.Key, kv.Value))
		}
	}
	return labels
}

// decodeLabels accepts a JSON list, printed by index, or a JSON object, whose
// keys keep their document order.
func decodeLabels(key, value string) ClassLabels {
	cl := ClassLabels{Key: key}
	data := []byte(value)
	if !json.Valid(data) {
		cl.Err = fmt.Errorf("%w: %q is not valid JSON", ErrLabelFormat, key)
		return cl
	}

	switch trimmed := bytes.TrimSpace(data); trimmed[0] {
	case '[':
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			cl.Err = fmt.Errorf("%w: %q: %w", ErrLabelFormat, key, err)
			return cl
		}
		cl.List = true
		for i, v := range list {
			cl.Entries = append(cl.Entries, LabelEntry{Key: strconv.Itoa(i), Value: labelText(v)})
		}
	case '{':
		m := orderedmap.New[string, any]()
		if err := json.Unmarshal(trimmed, m); err != nil {
			cl.Err = fmt.Errorf("%w: %q: %w", ErrLabelFormat, key, err)
			return cl
		}
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			cl.Entries = append(cl.Entries, LabelEntry{Key: pair.Key, Value: labelText(pair.Value)})
		}
	default:
		cl.Err = fmt.Errorf("%w: %q holds a JSON scalar", ErrLabelFormat, key)
	}
	return cl
}

func labelText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
