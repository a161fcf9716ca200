// SPDX-License-Identifier: AGPL-3.0-only
package utils

import (
	"encoding/json"
	"testing"
)

func TestJsonUnmarshalEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "null"} {
		var args map[string]any
		if err := JsonUnmarshal([]byte(in), &args); err != nil {
			t.Fatalf("JsonUnmarshal(%q): %v", in, err)
		}
		if args == nil || len(args) != 0 {
			t.Errorf("Expected empty map for %q, got %v", in, args)
		}
	}
}

func TestJsonUnmarshalKeepsNumbers(t *testing.T) {
	var args map[string]any
	if err := JsonUnmarshal([]byte(`{"size": 9007199254740993}`), &args); err != nil {
		t.Fatalf("JsonUnmarshal: %v", err)
	}
	n, ok := args["size"].(json.Number)
	if !ok {
		t.Fatalf("Expected json.Number, got %T", args["size"])
	}
	if n.String() != "9007199254740993" {
		t.Errorf("Expected exact digits, got %s", n)
	}
}

func TestJsonUnmarshalInvalid(t *testing.T) {
	var args map[string]any
	if err := JsonUnmarshal([]byte(`{"size":`), &args); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}
