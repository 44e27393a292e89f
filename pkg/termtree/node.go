// Package termtree rebuilds a term hierarchy from the remote taxonomy service
// and writes it to the store one node at a time.
package termtree

// Node is one term in a fetched hierarchy. The root node of a fetch carries
// the start term id (empty for a term-set root) and no name or parent.
// Children keep the order the remote API returned them in.
type Node struct {
	ID       string  `json:"Id"`
	Name     string  `json:"Name,omitempty"`
	ParentID string  `json:"ParentId,omitempty"`
	Children []*Node `json:"Children,omitempty"`
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Walk visits the tree in pre-order (node before its children) using an
// explicit stack. Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !fn(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}
