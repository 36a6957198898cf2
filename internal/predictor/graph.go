// internal/predictor/graph.go
package predictor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FairForge/navaccel/internal/nav"
)

// ErrInvalidGraph is wrapped by every graph construction error
var ErrInvalidGraph = errors.New("predictor: invalid route graph")

// RouteDefinition declares one node of the route graph
type RouteDefinition struct {
	Path     string     `yaml:"path" json:"path"`
	Roles    []nav.Role `yaml:"roles" json:"roles"`
	Children []string   `yaml:"children" json:"children"`
}

type routeNode struct {
	roles    map[nav.Role]struct{}
	children []string
}

// Graph is the immutable role-gated route graph
type Graph struct {
	nodes map[string]*routeNode
	order []string
}

// NewGraph validates defs and builds a graph. Every child must itself be a
// declared route so its allowed roles are known.
func NewGraph(defs []RouteDefinition) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*routeNode, len(defs))}

	for _, def := range defs {
		if def.Path == "" || !strings.HasPrefix(def.Path, "/") {
			return nil, fmt.Errorf("%w: path %q must start with /", ErrInvalidGraph, def.Path)
		}
		if _, dup := g.nodes[def.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate route %s", ErrInvalidGraph, def.Path)
		}
		if len(def.Roles) == 0 {
			return nil, fmt.Errorf("%w: route %s allows no roles", ErrInvalidGraph, def.Path)
		}

		n := &routeNode{
			roles:    make(map[nav.Role]struct{}, len(def.Roles)),
			children: make([]string, 0, len(def.Children)),
		}
		for _, r := range def.Roles {
			if !r.Valid() {
				return nil, fmt.Errorf("%w: route %s has unknown role %q", ErrInvalidGraph, def.Path, r)
			}
			n.roles[r] = struct{}{}
		}
		seen := make(map[string]bool, len(def.Children))
		for _, c := range def.Children {
			if seen[c] {
				return nil, fmt.Errorf("%w: route %s lists child %s twice", ErrInvalidGraph, def.Path, c)
			}
			seen[c] = true
			n.children = append(n.children, c)
		}

		g.nodes[def.Path] = n
		g.order = append(g.order, def.Path)
	}

	for _, path := range g.order {
		for _, c := range g.nodes[path].children {
			if _, ok := g.nodes[c]; !ok {
				return nil, fmt.Errorf("%w: route %s has undeclared child %s", ErrInvalidGraph, path, c)
			}
		}
	}

	return g, nil
}

// Has reports whether path is a declared route
func (g *Graph) Has(path string) bool {
	_, ok := g.nodes[path]
	return ok
}

// Children returns the declared children of path in order
func (g *Graph) Children(path string) []string {
	n, ok := g.nodes[path]
	if !ok {
		return nil
	}
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out
}

// IsChild reports whether child is a direct child of parent
func (g *Graph) IsChild(parent, child string) bool {
	n, ok := g.nodes[parent]
	if !ok {
		return false
	}
	for _, c := range n.children {
		if c == child {
			return true
		}
	}
	return false
}

// Allows reports whether role may visit path
func (g *Graph) Allows(path string, role nav.Role) bool {
	n, ok := g.nodes[path]
	if !ok {
		return false
	}
	_, allowed := n.roles[role]
	return allowed
}

// Paths returns every declared route in declaration order
func (g *Graph) Paths() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
