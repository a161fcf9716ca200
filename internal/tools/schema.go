// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"reflect"
	"sort"
	"strings"
)

// Param declares one named tool argument.
type Param struct {
	Name        string
	Type        string // JSON Schema type
	Items       string // element type when Type is "array"
	Description string
	Required    bool
}

// SchemaFromStruct converts a Go struct with json and description tags into
// a parameter list. Fields without omitempty are required.
func SchemaFromStruct(params interface{}) []Param {
	if params == nil {
		return nil
	}
	t := reflect.TypeOf(params)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var out []Param
	collectFields(t, &out)
	return out
}

// collectFields extracts parameters from struct fields,
// recursing into embedded (anonymous) structs.
func collectFields(t reflect.Type, out *[]Param) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Recurse into embedded structs
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, out)
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		// Parse json tag to get field name and options
		parts := strings.Split(jsonTag, ",")
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				omitempty = true
			}
		}

		p := Param{
			Name:        parts[0],
			Type:        goTypeToJSONType(field.Type),
			Description: field.Tag.Get("description"),
			Required:    !omitempty,
		}
		if p.Type == "array" {
			p.Items = goTypeToJSONType(field.Type.Elem())
		}
		*out = append(*out, p)
	}
}

// goTypeToJSONType maps Go types to JSON Schema types
func goTypeToJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// JSONSchema renders params as a JSON Schema object.
func JSONSchema(params []Param) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	for _, p := range params {
		prop := map[string]interface{}{"type": p.Type}
		if p.Type == "array" {
			items := p.Items
			if items == "" {
				items = "string"
			}
			prop["items"] = map[string]interface{}{"type": items}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ParamsFromSchema reads the properties and required list of a JSON Schema
// object, as returned by a remote tools/list call. Params are sorted by name.
func ParamsFromSchema(schema map[string]interface{}) []Param {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range req {
			required[s] = true
		}
	}

	out := make([]Param, 0, len(props))
	for name, raw := range props {
		p := Param{Name: name, Type: "string", Required: required[name]}
		if def, ok := raw.(map[string]interface{}); ok {
			if typ, ok := def["type"].(string); ok {
				p.Type = typ
			}
			if desc, ok := def["description"].(string); ok {
				p.Description = desc
			}
			if items, ok := def["items"].(map[string]interface{}); ok {
				if typ, ok := items["type"].(string); ok {
					p.Items = typ
				}
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
