// Package autograd inspects the computation graph recorded by tensor operations.
package autograd

import (
	"sort"

	"go-seqae/tensor"
)

// Trace returns every tensor reachable from root through Parents, in topological
// order: each tensor appears after all of its parents. Shared subgraphs are listed once.
func Trace(root *tensor.Tensor) []*tensor.Tensor {
	visited := make(map[*tensor.Tensor]bool)
	var topo []*tensor.Tensor

	var dfs func(*tensor.Tensor)
	dfs = func(t *tensor.Tensor) {
		if t == nil || visited[t] {
			return
		}
		visited[t] = true
		for _, parent := range t.Parents {
			dfs(parent)
		}
		topo = append(topo, t)
	}

	dfs(root)
	return topo
}

// OpCount is the number of graph nodes produced by one operation.
type OpCount struct {
	Op    string
	Count int
}

// Ops counts the operations in the graph under root, most frequent first.
// Leaf tensors are counted under "leaf".
func Ops(root *tensor.Tensor) []OpCount {
	counts := map[string]int{}
	for _, t := range Trace(root) {
		op := t.Operation
		if op == "" {
			op = "leaf"
		}
		counts[op]++
	}

	out := make([]OpCount, 0, len(counts))
	for op, n := range counts {
		out = append(out, OpCount{Op: op, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// Leaves returns the leaf tensors under root that require gradients, in trace order.
// For a model output these are the parameters that took part in the pass.
func Leaves(root *tensor.Tensor) []*tensor.Tensor {
	var leaves []*tensor.Tensor
	for _, t := range Trace(root) {
		if len(t.Parents) == 0 && t.RequiresGrad {
			leaves = append(leaves, t)
		}
	}
	return leaves
}
