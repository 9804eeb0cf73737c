package reorder

import "github.com/born-ml/sentisprep/internal/onnx"

// producerFirstOrder orders nodes by depth-first traversal: every node is
// emitted after the producers of its inputs, starting from each unvisited node
// in input order. It always terminates with a full permutation; on a cycle the
// node that closes it is simply emitted before its already-visited producer.
func producerFirstOrder(nodes []onnx.NodeProto, producers map[string]int) []int {
	visited := make([]bool, len(nodes))
	result := make([]int, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		// Visit dependencies first
		for _, input := range nodes[i].Inputs {
			if depIdx, ok := producers[input]; ok && input != "" {
				visit(depIdx)
			}
		}

		result = append(result, i)
	}

	for i := range nodes {
		visit(i)
	}

	return result
}
