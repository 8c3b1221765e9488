// Package domain defines the content-tree and document types ingested from
// the BOE and persisted into the knowledge graph.
package domain

import "time"

// NodeType is the closed set of structural roles a content-tree node can
// occupy. Precedence and rendering rules throughout the pipeline switch on
// this value rather than on ad-hoc string tags.
type NodeType int

const (
	NodeRoot NodeType = iota
	NodeLibro
	NodeTitulo
	NodeCapitulo
	NodeSeccion
	NodeSubseccion
	NodeArticulo
	NodeArticuloUnico
	NodeApartadoNumerico
	NodeApartadoAlfa
	NodeOrdinalNumerico
	NodeOrdinalAlfa
	NodeParrafo
	NodeDisposicion
)

var nodeTypeNames = map[NodeType]string{
	NodeRoot:             "root",
	NodeLibro:            "libro",
	NodeTitulo:           "título",
	NodeCapitulo:         "capítulo",
	NodeSeccion:          "sección",
	NodeSubseccion:       "subsección",
	NodeArticulo:         "artículo",
	NodeArticuloUnico:    "artículo_único",
	NodeApartadoNumerico: "apartado_numérico",
	NodeApartadoAlfa:     "apartado_alfa",
	NodeOrdinalNumerico:  "ordinal_numérico",
	NodeOrdinalAlfa:      "ordinal_alfa",
	NodeParrafo:          "párrafo",
	NodeDisposicion:      "disposición",
}

// String returns the Spanish tag for the node type, as used in path strings
// and graph labels.
func (t NodeType) String() string {
	if s, ok := nodeTypeNames[t]; ok {
		return s
	}
	return "desconocido"
}

var nodeTypesByName map[string]NodeType

func init() {
	nodeTypesByName = make(map[string]NodeType, len(nodeTypeNames))
	for t, name := range nodeTypeNames {
		nodeTypesByName[name] = t
	}
}

// ParseNodeType reverses String, for reconstructing a node's type from its
// persisted tag (e.g. when diffing a re-ingested document against the type
// tag stored on its previous graph node). An unrecognized tag defaults to
// NodeParrafo so a forward-incompatible stored value still diffs as plain
// content rather than failing the document.
func ParseNodeType(s string) NodeType {
	if t, ok := nodeTypesByName[s]; ok {
		return t
	}
	return NodeParrafo
}

// IsArticle reports whether the type denotes an embeddable article.
func (t NodeType) IsArticle() bool {
	return t == NodeArticulo || t == NodeArticuloUnico
}

// NodeHandle indexes a Node within a ContentTree's arena. Handle 0 is always
// the tree root, never an article, so article-only handle fields
// (PrevVersion, NextVersion) use the zero value to mean "none".
type NodeHandle int

// Reference is an unresolved citation recorded during parse and later
// materialized into a REFERS_TO edge by the bulk linker.
type Reference struct {
	TargetDocID     string
	TargetArticleID string // empty if the citation targets the whole document
	RawText         string
}

// Node is a single element of a document's content tree. Fields that only
// apply to article-shaped nodes (FechaVigencia, Embedding, version pointers)
// are left at their zero value on non-article nodes; the spec's sum-type
// node variants collapse to one struct since Go has no tagged unions and
// every field set is small.
type Node struct {
	ID       int
	Type     NodeType
	Name     string
	Level    int
	Text     string
	Children []NodeHandle

	// Article-only fields.
	FechaVigencia  *time.Time
	FechaCaducidad *time.Time
	PrevVersion    NodeHandle // 0 means none
	NextVersion    NodeHandle
	Embedding      []float32
	References     []Reference
}

// ContentTree is an arena of Nodes for one document. Node 0 is always the
// root; parent/child links are handles into Nodes, never pointers, so the
// tree cannot form cycles and can be copied or serialized trivially.
type ContentTree struct {
	Nodes []Node

	// ArticlesByID indexes article nodes by their document-local integer id,
	// the auxiliary version-chain index called for by the design notes: it
	// sits beside the tree rather than being woven into it as owned pointers.
	ArticlesByID map[int]NodeHandle
}

// NewContentTree creates a tree with only the root node.
func NewContentTree() *ContentTree {
	return &ContentTree{
		Nodes:        []Node{{ID: 0, Type: NodeRoot, Level: 0}},
		ArticlesByID: make(map[int]NodeHandle),
	}
}

// Root returns the handle of the tree's root node.
func (t *ContentTree) Root() NodeHandle { return 0 }

// Node returns the node at the given handle.
func (t *ContentTree) Node(h NodeHandle) *Node { return &t.Nodes[h] }

// AddChild appends n as a child of parent and returns n's handle. If n is an
// article node, it is also registered in ArticlesByID.
func (t *ContentTree) AddChild(parent NodeHandle, n Node) NodeHandle {
	h := NodeHandle(len(t.Nodes))
	t.Nodes = append(t.Nodes, n)
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, h)
	if n.Type.IsArticle() {
		t.ArticlesByID[n.ID] = h
	}
	return h
}

// Articles returns every article-shaped node in the tree, in document order.
func (t *ContentTree) Articles() []NodeHandle {
	var out []NodeHandle
	var walk func(NodeHandle)
	walk = func(h NodeHandle) {
		n := &t.Nodes[h]
		if n.Type.IsArticle() {
			out = append(out, h)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root())
	return out
}

// HierarchyPath returns the chain of ancestor handles from the root down to
// (and including) h, found by a depth-first search from the root since
// nodes carry no parent handle by design (handles are owned top-down only).
func (t *ContentTree) HierarchyPath(h NodeHandle) []NodeHandle {
	var path []NodeHandle
	var found bool
	var walk func(NodeHandle, []NodeHandle)
	walk = func(cur NodeHandle, acc []NodeHandle) {
		if found {
			return
		}
		acc = append(acc, cur)
		if cur == h {
			path = append([]NodeHandle{}, acc...)
			found = true
			return
		}
		for _, c := range t.Nodes[cur].Children {
			walk(c, acc)
			if found {
				return
			}
		}
	}
	walk(t.Root(), nil)
	return path
}
