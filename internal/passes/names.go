package passes

import (
	"strconv"

	"github.com/born-ml/sentisprep/internal/onnx"
)

// AllocateName returns base if it is not in used, otherwise base_1, base_2, ...
// whichever is free first. The returned name is added to used.
func AllocateName(used map[string]struct{}, base string) string {
	name := base
	for k := 1; ; k++ {
		if _, taken := used[name]; !taken {
			break
		}
		name = base + "_" + strconv.Itoa(k)
	}
	used[name] = struct{}{}
	return name
}

// AllocateIndexedName returns prefix<k> for the first k after *next that is
// not in used, and leaves *next at k. The returned name is added to used.
func AllocateIndexedName(used map[string]struct{}, prefix string, next *int) string {
	for {
		*next++
		name := prefix + strconv.Itoa(*next)
		if _, taken := used[name]; !taken {
			used[name] = struct{}{}
			return name
		}
	}
}

// tensorNames collects every tensor name the graph defines or references.
func tensorNames(g *onnx.GraphProto) map[string]struct{} {
	used := make(map[string]struct{})
	add := func(s string) {
		if s != "" {
			used[s] = struct{}{}
		}
	}
	for i := range g.Inputs {
		add(g.Inputs[i].Name)
	}
	for i := range g.Outputs {
		add(g.Outputs[i].Name)
	}
	for i := range g.Initializers {
		add(g.Initializers[i].Name)
	}
	for i := range g.Nodes {
		for _, s := range g.Nodes[i].Inputs {
			add(s)
		}
		for _, s := range g.Nodes[i].Outputs {
			add(s)
		}
	}
	return used
}
