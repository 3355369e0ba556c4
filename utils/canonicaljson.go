package utils

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalizeJSON renders a decoded JSON value with object keys sorted so
// equal values always hash identically.
func CanonicalizeJSON(data interface{}) (string, error) {
	switch value := data.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		parts := make([]string, 0, len(keys))

		for _, key := range keys {
			canonical, err := CanonicalizeJSON(value[key])
			if err != nil {
				return "", err
			}

			encodedKey, err := json.Marshal(key)
			if err != nil {
				return "", err
			}

			parts = append(parts, fmt.Sprintf("%s:%s", encodedKey, canonical))
		}

		return "{" + strings.Join(parts, ",") + "}", nil
	case []interface{}:
		parts := make([]string, 0, len(value))

		for _, item := range value {
			canonical, err := CanonicalizeJSON(item)
			if err != nil {
				return "", err
			}

			parts = append(parts, canonical)
		}

		return "[" + strings.Join(parts, ",") + "]", nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", err
		}

		return string(encoded), nil
	}
}
