package rocrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

const (
	// MetadataID is the id of the metadata descriptor entity.
	MetadataID = "ro-crate-metadata.json"
	// RootID is the id of the root data entity that represents the crate itself.
	RootID = "./"
	// Context is the JSON-LD context every crate metadata document declares.
	Context = "https://w3id.org/ro/crate/1.1/context"
	// SpecProfile is the RO-Crate specification the descriptor conforms to.
	SpecProfile = "https://w3id.org/ro/crate/1.1"
)

// ErrDanglingReference is returned when a Ref points at an id that is not
// part of the graph.
var ErrDanglingReference = errors.New("dangling reference")

// Graph is a flat, id-keyed set of entities with stable insertion order.
//
// Inserting an entity whose id is already present replaces it in place.
// References between entities are not checked on insertion; they are
// resolved lazily through Resolve, and DanglingRefs reports the ones that
// would fail.
type Graph struct {
	entities map[string]Entity
	order    []string
}

// NewGraph returns a graph seeded with the metadata descriptor and the
// root data entity.
func NewGraph() *Graph {
	g := &Graph{entities: make(map[string]Entity)}

	descriptor := NewEntity(KindMetadata, MetadataID, "CreativeWork")
	descriptor.Set("about", Ref{ID: RootID})
	descriptor.Set("conformsTo", Ref{ID: SpecProfile})
	g.Put(descriptor)

	g.Put(NewEntity(KindRoot, RootID, "Dataset"))
	return g
}

// Put inserts or replaces an entity.
func (g *Graph) Put(e Entity) {
	if _, exists := g.entities[e.ID]; !exists {
		g.order = append(g.order, e.ID)
	}
	g.entities[e.ID] = e.clone()
}

// Get returns a copy of the entity with the given id.
func (g *Graph) Get(id string) (Entity, bool) {
	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Has reports whether an entity with the given id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.entities[id]
	return ok
}

// Root returns a copy of the root data entity.
func (g *Graph) Root() Entity {
	root, _ := g.Get(RootID)
	return root
}

// Len returns the number of entities in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Entities returns copies of all entities in insertion order.
func (g *Graph) Entities() []Entity {
	out := make([]Entity, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.entities[id].clone())
	}
	return out
}

// OfKind returns copies of all entities of kind k in insertion order.
func (g *Graph) OfKind(k Kind) []Entity {
	var out []Entity
	for _, id := range g.order {
		if e := g.entities[id]; e.Kind == k {
			out = append(out, e.clone())
		}
	}
	return out
}

// Resolve looks up the entity a reference points at.
func (g *Graph) Resolve(ref Ref) (Entity, error) {
	e, ok := g.Get(ref.ID)
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrDanglingReference, ref.ID)
	}
	return e, nil
}

// DanglingRefs returns the ids referenced from within the graph that do not
// resolve, as "<entity id> -> <property>: <target>" entries. The metadata
// descriptor's links are skipped since its conformsTo names the RO-Crate
// specification, which is never part of the graph.
func (g *Graph) DanglingRefs() []string {
	var dangling []string
	for _, id := range g.order {
		if id == MetadataID {
			continue
		}
		e := g.entities[id]
		keys := make([]string, 0, len(e.Props))
		for k := range e.Props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			for _, ref := range e.Links(key) {
				if g.Has(ref.ID) {
					continue
				}
				dangling = append(dangling, fmt.Sprintf("%s -> %s: %s", id, key, ref.ID))
			}
		}
	}
	return dangling
}

type document struct {
	Context any      `json:"@context"`
	Graph   []Entity `json:"@graph"`
}

// MarshalJSON encodes the graph as an RO-Crate metadata document.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		Context: Context,
		Graph:   g.Entities(),
	})
}

// UnmarshalJSON decodes an RO-Crate metadata document. Entities replace the
// seeded descriptor and root when they share an id.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*g = *NewGraph()
	for _, e := range doc.Graph {
		if e.ID == "" {
			return errors.New("crate entity without @id")
		}
		g.Put(e)
	}
	return nil
}

// ParseMetadata decodes an RO-Crate metadata document into a new graph.
func ParseMetadata(data []byte) (*Graph, error) {
	g := new(Graph)
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to parse crate metadata: %w", err)
	}
	return g, nil
}
