package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go-portal-client/pkg/apierror"
)

const maxTextMessageLen = 200

// normalize converts a non-2xx response into the one error shape callers
// see. JSON bodies are mined for a message in a fixed order: detail, message,
// error, non_field_errors, any field-keyed string or string list, then a
// nested errors object. Anything else falls back to a generic message so the
// result always carries a non-empty Message.
func normalize(status int, contentType string, body []byte) *apierror.APIError {
	apiErr := &apierror.APIError{Status: status}

	if strings.Contains(contentType, "application/json") {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil && len(payload) > 0 {
			fill(apiErr, payload)
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Message = truncate(text, maxTextMessageLen)
	}

	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Request failed with status %d", status)
	}

	return apiErr
}

// reservedKeys are the payload keys that carry a message or wrapper rather
// than a field-level error. Everything else is treated as field-keyed.
var reservedKeys = map[string]struct{}{
	"detail":           {},
	"message":          {},
	"error":            {},
	"non_field_errors": {},
	"errors":           {},
	"status":           {},
	"code":             {},
}

func fill(apiErr *apierror.APIError, payload map[string]any) {
	apiErr.Details = fieldEntries(payload)
	apiErr.NonFieldErrors = toStrings(payload["non_field_errors"])
	if nested, ok := payload["errors"].(map[string]any); ok {
		apiErr.Errors = nested
	}

	for _, key := range []string{"detail", "message", "error"} {
		if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
			apiErr.Message = msg
			return
		}
	}

	if len(apiErr.NonFieldErrors) > 0 {
		apiErr.Message = apiErr.NonFieldErrors[0]
		return
	}

	if msg := fieldMessage(apiErr.Details); msg != "" {
		apiErr.Message = msg
		return
	}

	if apiErr.Errors != nil {
		apiErr.Message = fieldMessage(apiErr.Errors)
	}
}

// fieldEntries keeps only the field-keyed portion of the payload: entries
// whose value reads as an error string or list of them. A message-only body
// like {"detail": "Internal server error"} yields nil, so it never counts as
// field-level validation detail.
func fieldEntries(payload map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range payload {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		if len(toStrings(value)) > 0 {
			out[key] = value
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// fieldMessage scans field-keyed error values in deterministic key order and
// renders the first usable one as "field: message".
func fieldMessage(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch value := payload[key].(type) {
		case string:
			if strings.TrimSpace(value) != "" {
				return key + ": " + value
			}
		case []any:
			if msgs := toStrings(value); len(msgs) > 0 {
				return key + ": " + msgs[0]
			}
		}
	}

	return ""
}

func toStrings(value any) []string {
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if msg, ok := item.(string); ok && strings.TrimSpace(msg) != "" {
				out = append(out, msg)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit]) + "..."
}
