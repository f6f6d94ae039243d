package provision

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is an ordered sequence of nodes in which every node appears after all
// of its dependencies. Plans are constructed once per run and are read-only
// during execution.
type Plan struct {
	Nodes []*Node
}

// CycleError reports a dependency cycle in the declared node set. A cycle is
// a configuration error and is detected before any provider call is made.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving nodes: %s", strings.Join(e.Nodes, ", "))
}

// Sequence validates the node set and produces a total order respecting the
// declared dependency edges (Kahn's algorithm). Among nodes whose
// dependencies are all satisfied, the lexicographically smallest name goes
// first, so the order is deterministic for a given node set.
func Sequence(nodes []*Node) (*Plan, error) {
	byName := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node name is required")
		}
		if _, dup := byName[n.Name]; dup {
			return nil, fmt.Errorf("duplicate node name %q", n.Name)
		}
		byName[n.Name] = n
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.Name] += 0
		for _, dep := range n.DependsOn {
			if dep == n.Name {
				return nil, fmt.Errorf("node %q depends on itself", n.Name)
			}
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("node %q depends on undeclared node %q", n.Name, dep)
			}
			indegree[n.Name]++
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]*Node, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])

		var unlocked []string
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(nodes) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Nodes: stuck}
	}

	return &Plan{Nodes: ordered}, nil
}
