package accounts

import "sort"

// Node is an account with its children, ordered by code.
type Node struct {
	Account  Account
	Children []*Node
}

// BuildTree arranges accounts into parent-child hierarchies. Accounts whose
// parent is not in the slice become roots.
func BuildTree(list []Account) []*Node {
	nodes := make(map[int64]*Node, len(list))
	for _, acc := range list {
		nodes[acc.ID] = &Node{Account: acc}
	}
	var roots []*Node
	for _, acc := range list {
		node := nodes[acc.ID]
		if acc.ParentID != nil {
			if parent, ok := nodes[*acc.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Account.Code < nodes[j].Account.Code })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Walk visits n and its descendants depth-first.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(node *Node, depth int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// PostingDescendants returns the posting accounts in n's subtree, n included.
func (n *Node) PostingDescendants() []Account {
	var out []Account
	n.Walk(func(node *Node, _ int) {
		if node.Account.IsPosting {
			out = append(out, node.Account)
		}
	})
	return out
}

// createsCycle reports whether re-parenting id under parentID would make id
// its own ancestor.
func createsCycle(list []Account, id, parentID int64) bool {
	parents := make(map[int64]*int64, len(list))
	for _, acc := range list {
		parents[acc.ID] = acc.ParentID
	}
	seen := make(map[int64]bool)
	for cur := parentID; ; {
		if cur == id {
			return true
		}
		if seen[cur] {
			return true
		}
		seen[cur] = true
		next, ok := parents[cur]
		if !ok || next == nil {
			return false
		}
		cur = *next
	}
}
