// Package jsonx provides JSON extraction utilities for parsing LLM responses.
//
// Models often return JSON embedded in prose or wrapped in markdown fences.
// These helpers pull the JSON payload out of such responses before decoding.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extract finds and returns the JSON portion of a response string.
// It handles the common response shapes:
// 1. Pure JSON - returned as is
// 2. JSON wrapped in markdown code fences (```json ... ```)
// 3. JSON object embedded in text - first '{' to last '}'
//
// Only objects are handled, with simple brace matching rather than a full
// parse; unbalanced braces inside strings can defeat it.
func extract(response string) (string, error) {
	response = stripCodeFences(response)

	var test interface{}
	if err := json.Unmarshal([]byte(response), &test); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end != -1 && end > start {
			candidate := response[start : end+1]
			var test interface{}
			if err := json.Unmarshal([]byte(candidate), &test); err == nil {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripCodeFences removes markdown code fence markers from a response.
// Handles ```json\n...\n``` and bare ```\n...\n``` forms.
func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// Decode extracts JSON from a model response and unmarshals it into T.
func Decode[T any](response string) (T, error) {
	var result T
	payload, err := extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// DecodeInto extracts JSON from a model response into a provided pointer.
func DecodeInto(response string, result interface{}) error {
	payload, err := extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), result); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// Extract returns the raw JSON string found in a model response.
func Extract(response string) (string, error) {
	return extract(response)
}
