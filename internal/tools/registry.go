// SPDX-License-Identifier: AGPL-3.0-only

// Package tools declares the capabilities offered to the model: each tool's
// name, description, argument schema and the guidance returned when a
// required argument is missing.
package tools

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jolks/mcp-toolchat/internal/configutil"
	"github.com/jolks/mcp-toolchat/internal/errors"
)

var (
	// ErrDuplicateToolName is returned by Register for a name already in use.
	ErrDuplicateToolName = fmt.Errorf("duplicate tool name: %w", errors.ErrAlreadyExists)
	// ErrToolNotFound is returned by Lookup for an unregistered name.
	ErrToolNotFound = fmt.Errorf("tool not found: %w", errors.ErrNotFound)
)

// GuidanceFunc produces the user-guidance message for a call that is missing
// the named required arguments.
type GuidanceFunc func(missing []string) string

// Spec declares a tool.
type Spec struct {
	Name        string
	Description string
	Params      []Param
	// Guidance, when set, makes the loop short-circuit calls with missing
	// required arguments instead of invoking the remote tool.
	Guidance GuidanceFunc
	// Remote marks tools discovered on the remote endpoint rather than declared locally.
	Remote bool
}

// InputSchema renders the tool's params as a JSON Schema object.
func (s Spec) InputSchema() map[string]interface{} {
	return JSONSchema(s.Params)
}

// Definition is the declared schema of a tool as offered to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Registry maps tool names to their specs. It is populated at startup and
// only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds spec, failing if its name is already registered.
func (r *Registry) Register(spec Spec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errors.InvalidInput("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateToolName, name)
	}
	spec.Name = name
	r.specs[name] = spec
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return spec, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// Specs returns all specs sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns the declared schema of every tool, sorted by name.
func (r *Registry) Definitions() []Definition {
	specs := r.Specs()
	out := make([]Definition, len(specs))
	for i, s := range specs {
		out[i] = Definition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema(),
		}
	}
	return out
}

// MergeRemote registers remotely discovered tools that are not declared
// locally. Local declarations win. It returns the number of tools added.
func (r *Registry) MergeRemote(defs []Definition) int {
	added := 0
	for _, d := range defs {
		spec := Spec{
			Name:        d.Name,
			Description: d.Description,
			Params:      ParamsFromSchema(d.Parameters),
			Remote:      true,
		}
		if err := r.Register(spec); err == nil {
			added++
		}
	}
	return added
}

// Canonicalize returns a copy of args whose keys are renamed to the declared
// parameter names when they match after case, underscore and hyphen folding.
// A key that already uses the canonical name takes precedence.
func Canonicalize(spec Spec, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	canonical := make(map[string]string, len(spec.Params))
	for _, p := range spec.Params {
		canonical[configutil.NormalizeKey(p.Name)] = p.Name
	}

	for k, v := range args {
		name, ok := canonical[configutil.NormalizeKey(k)]
		if !ok {
			out[k] = v
			continue
		}
		if _, exact := args[name]; exact && k != name {
			continue
		}
		out[name] = v
	}
	return out
}

// MissingRequired lists the required params of spec that are absent from args
// or hold an empty value.
func MissingRequired(spec Spec, args map[string]any) []string {
	var missing []string
	for _, p := range spec.Params {
		if !p.Required {
			continue
		}
		if isEmpty(args[p.Name]) {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
