package registry

// FindTest locates a test node by its id within a freshly built tree.
// Workers use this to map work-item identifiers onto their own rebuilt
// registration state.
func FindTest(root *Suite, id string) *Test {
	var found *Test
	root.Walk(func(t *Test) {
		if found == nil && t.ID() == id {
			found = t
		}
	})
	return found
}

// FindSuite locates a suite by its path names, root first. The root suite's
// own name is the first element.
func FindSuite(root *Suite, path []string) *Suite {
	if len(path) == 0 || root.Name != path[0] {
		return nil
	}
	cur := root
	for _, name := range path[1:] {
		var next *Suite
		for _, child := range cur.Suites() {
			if child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
