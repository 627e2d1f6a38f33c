// Package devtree implements the device-tree probe pipeline of §4.14: a
// list of probe functions run in order over every node, rerun until the
// set of nodes still Waiting on a dependency (typically an
// interrupt-parent or clock provider) stops shrinking.
//
// No teacher or pack file implements a device-tree probe pipeline (the
// pack's hardware-adjacent code is PCI/x86-oriented, not ARM
// devicetree-oriented); this package is written directly from §4.14,
// in the style the rest of this module already uses for boot-time
// singleton wiring (constructor functions taking explicit dependencies
// rather than package-level globals, per §9's "parameters threaded
// through a Kernel context" guidance).
package devtree

// Node is a minimal device-tree node: enough structure for the probe
// pipeline to walk, without a full flattened-devicetree (FDT) blob parser,
// which is out of scope for this rewrite's boot path (the host simulation
// constructs the tree directly rather than unflattening a DTB).
type Node struct {
	Name       string
	Compatible []string
	Properties map[string][]byte

	Parent           *Node
	Children         []*Node
	InterruptParent  *Node
	ClockProvider    *Node
}

func NewNode(name string, compatible ...string) *Node {
	return &Node{Name: name, Compatible: compatible, Properties: make(map[string][]byte)}
}

func (n *Node) AddChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) IsCompatible(name string) bool {
	for _, c := range n.Compatible {
		if c == name {
			return true
		}
	}
	return false
}

// Walk visits n and every descendant, depth-first, pre-order.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.Children {
		c.Walk(visit)
	}
}
