package model

// walkNodes calls fn for every node directly contained in v, descending
// through aggregates and containers but not through nodes. It uses an
// explicit stack so deeply nested values cannot exhaust the call stack.
func walkNodes(v Value, fn func(*Node)) {
	stack := []Value{v}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch val := plain(top).(type) {
		case *Node:
			fn(val)
		case Array:
			for i := len(val) - 1; i >= 0; i-- {
				stack = append(stack, val[i])
			}
		case Object:
			keys := val.SortedKeys()
			for i := len(keys) - 1; i >= 0; i-- {
				stack = append(stack, val[keys[i]])
			}
		}
	}
}

// HasReferences reports whether v directly contains any node.
func HasReferences(v Value) bool {
	found := false
	walkNodes(v, func(*Node) { found = true })
	return found
}

// DirectReferences returns the nodes directly held by n's attributes, in
// sorted attribute order. Defaults are included.
func (n *Node) DirectReferences() []*Node {
	var out []*Node
	for _, attr := range n.typ.Attrs() {
		v, ok := n.attrs[attr]
		if !ok {
			v = n.typ.Default(attr)
		}
		walkNodes(v, func(ref *Node) { out = append(out, ref) })
	}
	return out
}

// CollectNodes returns every node reachable from vals, in breadth-first
// discovery order. Cycles are tolerated; each node appears once.
func CollectNodes(vals ...Value) []*Node {
	seen := make(map[*Node]bool)
	var order []*Node
	var queue []*Node
	visit := func(n *Node) {
		if !seen[n] {
			seen[n] = true
			order = append(order, n)
			queue = append(queue, n)
		}
	}
	for _, v := range vals {
		walkNodes(v, visit)
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, ref := range n.DirectReferences() {
			visit(ref)
		}
	}
	return order
}

// References returns n and every node reachable from it.
func (n *Node) References() []*Node {
	return CollectNodes(n)
}
