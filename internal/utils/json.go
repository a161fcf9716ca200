// SPDX-License-Identifier: AGPL-3.0-only
package utils

import (
	"bytes"
	"encoding/json"
)

// JsonUnmarshal decodes data into v, treating empty input as an empty object
// and preserving large integers as json.Number.
func JsonUnmarshal(data []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	return dec.Decode(v)
}
