// Package tree builds the project, runner group and test file hierarchy shown
// to the host and used to select what a batch runs.
package tree

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AndreyAkinshin/gtm/internal/config"
)

// NodeKind distinguishes the levels of the tree.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindProject
	KindRunnerGroup
	KindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindProject:
		return "project"
	case KindRunnerGroup:
		return "runnerGroup"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Node is one entry of the test tree.
type Node struct {
	ID       ID
	Kind     NodeKind
	Label    string
	Children []*Node
}

// Build returns a root collection node holding one project node per project,
// one runner group per runner and one leaf per test file, in configuration
// order. It performs no I/O and the same input always yields the same tree.
func Build(projects []config.ProjectConfig) *Node {
	title := cases.Title(language.English)

	root := &Node{Kind: KindRoot, Children: make([]*Node, 0, len(projects))}
	for _, p := range projects {
		pn := &Node{
			ID:       ProjectID(p.Path),
			Kind:     KindProject,
			Label:    p.Label(),
			Children: make([]*Node, 0, len(p.Runners)),
		}
		for _, r := range p.Runners {
			gn := &Node{
				ID:       GroupID(p.Path, r.Kind),
				Kind:     KindRunnerGroup,
				Label:    title.String(string(r.Kind)),
				Children: make([]*Node, 0, len(r.TestFiles)),
			}
			for _, f := range r.TestFiles {
				gn.Children = append(gn.Children, &Node{
					ID:    LeafID(p.Path, r.Kind, f),
					Kind:  KindLeaf,
					Label: f,
				})
			}
			pn.Children = append(pn.Children, gn)
		}
		root.Children = append(root.Children, pn)
	}
	return root
}

// Walk visits n and its descendants depth-first in order. Returning false from
// fn skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Leaves returns the leaf descendants of n in order, or n itself when n is a leaf.
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	n.Walk(func(c *Node) bool {
		if c.Kind == KindLeaf {
			leaves = append(leaves, c)
			return false
		}
		return true
	})
	return leaves
}

// Find returns the first node below n (or n itself) whose encoded id equals id.
// The root node has no id and is never matched.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Kind != KindRoot && c.ID.String() == id {
			found = c
			return false
		}
		return true
	})
	return found
}
