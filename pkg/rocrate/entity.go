package rocrate

import (
	"encoding/json"
	"maps"
	"slices"
)

// Kind is the closed set of entity shapes a crate graph is built from.
type Kind int

const (
	KindThing Kind = iota
	KindMetadata
	KindRoot
	KindProfile
	KindLicense
	KindWorkflow
	KindAction
	KindFormalParameter
	KindPropertyValue
	KindFile
	KindAgent
	KindProject
	KindOrganization
)

func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindRoot:
		return "root"
	case KindProfile:
		return "profile"
	case KindLicense:
		return "license"
	case KindWorkflow:
		return "workflow"
	case KindAction:
		return "action"
	case KindFormalParameter:
		return "formal-parameter"
	case KindPropertyValue:
		return "property-value"
	case KindFile:
		return "file"
	case KindAgent:
		return "agent"
	case KindProject:
		return "project"
	case KindOrganization:
		return "organization"
	default:
		return "thing"
	}
}

// Ref links one entity to another by id. It encodes as {"@id": "..."}.
type Ref struct {
	ID string `json:"@id"`
}

// Entity is an identified, typed record in a crate graph.
//
// Props holds every vocabulary property other than @id and @type. A value
// is a scalar, a Ref, or a slice of either. Entities never nest other
// entities by value; relationships are always expressed through Ref.
type Entity struct {
	ID    string
	Kind  Kind
	Types []string
	Props map[string]any
}

// NewEntity creates an entity of the given kind and @type values.
func NewEntity(kind Kind, id string, types ...string) Entity {
	return Entity{
		ID:    id,
		Kind:  kind,
		Types: types,
		Props: make(map[string]any),
	}
}

// Ref returns a reference to e.
func (e Entity) Ref() Ref {
	return Ref{ID: e.ID}
}

// Set assigns a property, replacing any previous value.
func (e *Entity) Set(key string, value any) {
	if e.Props == nil {
		e.Props = make(map[string]any)
	}
	e.Props[key] = value
}

// Get returns a property value.
func (e Entity) Get(key string) (any, bool) {
	v, ok := e.Props[key]
	return v, ok
}

// Unset removes a property.
func (e *Entity) Unset(key string) {
	delete(e.Props, key)
}

// Text returns a string property or "" when it is absent or not a string.
func (e Entity) Text(key string) string {
	v, _ := e.Props[key].(string)
	return v
}

// Link returns the Ref stored under key, if the property is a single link.
func (e Entity) Link(key string) (Ref, bool) {
	r, ok := e.Props[key].(Ref)
	return r, ok
}

// Links returns all Refs stored under key, whether the property holds a
// single link or a list.
func (e Entity) Links(key string) []Ref {
	switch v := e.Props[key].(type) {
	case Ref:
		return []Ref{v}
	case []Ref:
		return slices.Clone(v)
	case []any:
		refs := make([]Ref, 0, len(v))
		for _, item := range v {
			if r, ok := item.(Ref); ok {
				refs = append(refs, r)
			}
		}
		return refs
	}
	return nil
}

// AppendLink appends a link to the list stored under key. A single link
// already present is promoted to a list; a duplicate id is not appended twice.
func (e *Entity) AppendLink(key string, ref Ref) {
	refs := e.Links(key)
	if slices.Contains(refs, ref) {
		return
	}
	e.Set(key, append(refs, ref))
}

// HasType reports whether t is one of the entity's @type values.
func (e Entity) HasType(t string) bool {
	return slices.Contains(e.Types, t)
}

func (e Entity) clone() Entity {
	c := Entity{
		ID:    e.ID,
		Kind:  e.Kind,
		Types: slices.Clone(e.Types),
		Props: make(map[string]any, len(e.Props)),
	}
	for k, v := range e.Props {
		c.Props[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []Ref:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case map[string]any:
		return maps.Clone(t)
	}
	return v
}

// MarshalJSON encodes the entity as a flat JSON-LD node object.
func (e Entity) MarshalJSON() ([]byte, error) {
	node := make(map[string]any, len(e.Props)+2)
	for k, v := range e.Props {
		node[k] = v
	}
	node["@id"] = e.ID
	switch len(e.Types) {
	case 0:
	case 1:
		node["@type"] = e.Types[0]
	default:
		node["@type"] = e.Types
	}
	return json.Marshal(node)
}

// UnmarshalJSON decodes a JSON-LD node object. Objects carrying only an
// @id are decoded as Ref; the Kind is inferred from @type.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var node map[string]any
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}

	id, _ := node["@id"].(string)
	e.ID = id
	e.Types = nil
	switch t := node["@type"].(type) {
	case string:
		e.Types = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				e.Types = append(e.Types, s)
			}
		}
	}
	delete(node, "@id")
	delete(node, "@type")

	e.Props = make(map[string]any, len(node))
	for k, v := range node {
		e.Props[k] = decodeValue(v)
	}
	e.Kind = kindOf(e.ID, e.Types)
	return nil
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := t["@id"].(string); ok && len(t) == 1 {
			return Ref{ID: id}
		}
		return t
	case []any:
		out := make([]any, len(t))
		allRefs := len(t) > 0
		for i, item := range t {
			out[i] = decodeValue(item)
			if _, ok := out[i].(Ref); !ok {
				allRefs = false
			}
		}
		if allRefs {
			refs := make([]Ref, len(out))
			for i, item := range out {
				refs[i] = item.(Ref)
			}
			return refs
		}
		return out
	}
	return v
}

func kindOf(id string, types []string) Kind {
	switch id {
	case MetadataID:
		return KindMetadata
	case RootID:
		return KindRoot
	}
	if slices.Contains(types, "Profile") {
		return KindProfile
	}
	for _, t := range types {
		switch t {
		case "CreateAction":
			return KindAction
		case "FormalParameter":
			return KindFormalParameter
		case "PropertyValue":
			return KindPropertyValue
		case "File":
			return KindFile
		case "Person":
			return KindAgent
		case "Project":
			return KindProject
		case "Organization":
			return KindOrganization
		case "ComputationalWorkflow":
			return KindWorkflow
		case "CreativeWork":
			return KindLicense
		}
	}
	return KindThing
}
