// internal/endpoint/record.go
package endpoint

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Kind discriminates what an endpoint answers against.
type Kind string

const (
	// KindRAG endpoints answer questions from a vector index plus a chat model.
	KindRAG Kind = "rag"
)

// Field names understood by rag endpoints.
const (
	FieldAPIKey         = "api_key"
	FieldEmbeddingModel = "embedding_model"
	FieldChatModel      = "chat_model"
	FieldIndexPath      = "index_path"
	FieldBaseURL        = "base_url"
	FieldSystemPrompt   = "system_prompt"
)

const maxNameLength = 128

// requiredFields lists, per kind, the fields that must be present when a
// record is added. Adding a new Kind means adding an entry here and
// registering a matching answerer with the dispatcher.
var requiredFields = map[Kind][]string{
	KindRAG: {FieldAPIKey, FieldEmbeddingModel, FieldChatModel, FieldIndexPath},
}

// ParseKind converts a wire value into a Kind. The empty string selects rag.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindRAG, nil
	}
	if _, ok := requiredFields[k]; !ok {
		return "", fmt.Errorf("unknown endpoint kind '%s'", s)
	}
	return k, nil
}

// RequiredFields returns the fields a record of kind k must carry.
func RequiredFields(k Kind) []string {
	return append([]string(nil), requiredFields[k]...)
}

// Fields holds kind-specific settings. JSON and YAML encode it with sorted keys.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Keys returns the field names in lexicographic order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidatePartial checks the shape of a field set used to update a record.
func (f Fields) ValidatePartial() error {
	if len(f) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	for k := range f {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("field names must not be empty")
		}
	}
	return nil
}

// Record is the configuration of one named endpoint.
type Record struct {
	Name   string `json:"name" yaml:"name"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Fields Fields `json:"fields" yaml:"fields"`
}

// Clone returns a copy of r that shares no memory with it.
func (r Record) Clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}

// Validate checks that the record is structurally complete for its kind.
func (r Record) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if _, ok := requiredFields[r.Kind]; !ok {
		return fmt.Errorf("unknown endpoint kind '%s'", r.Kind)
	}
	for k := range r.Fields {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("field names must not be empty")
		}
	}
	var missing []string
	for _, name := range requiredFields[r.Kind] {
		if strings.TrimSpace(r.Fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields for %s endpoint: %s", r.Kind, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateName checks an endpoint name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("endpoint name is required")
	case len(name) > maxNameLength:
		return fmt.Errorf("endpoint name must be at most %d bytes", maxNameLength)
	case strings.Contains(name, "/"):
		return fmt.Errorf("endpoint name must not contain '/'")
	}
	return nil
}
