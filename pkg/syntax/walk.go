package syntax

// Walk visits node and its descendants in pre-order. Returning false from
// fn skips the children of the current node.
func Walk(node Node, fn func(Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for _, c := range node.Children() {
		Walk(c, fn)
	}
}

// Find returns the innermost function, class or variable declaration whose
// span contains line, or nil.
func Find(root Node, line int) Node {
	var found Node
	Walk(root, func(n Node) bool {
		if !n.Span().Contains(line) {
			return false
		}
		switch n.(type) {
		case *Function, *Class, *Variable:
			found = n
		}
		return true
	})
	return found
}

// Declarations collects every node of the given kinds in pre-order.
func Declarations(root Node, kinds ...Kind) []Node {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Node
	Walk(root, func(n Node) bool {
		if want[n.Kind()] {
			out = append(out, n)
		}
		return true
	})
	return out
}

// First returns the first declaration node (function, class or variable)
// in pre-order, or nil.
func First(root Node) Node {
	var found Node
	Walk(root, func(n Node) bool {
		if found != nil {
			return false
		}
		switch n.(type) {
		case *Function, *Class, *Variable:
			found = n
			return false
		}
		return true
	})
	return found
}
