package audit

import (
	"slices"
)

// Operator families, as grouped in the Sentis 2.1 operator documentation.
var (
	tensorOps = []string{
		"Cast", "Concat", "ConstantOfShape", "Expand", "Flatten", "Gather", "Identity",
		"OneHot", "Reshape", "Slice", "Split", "Squeeze", "Tile", "Transpose", "Unsqueeze",
	}
	mathOps = []string{
		"Add", "BitShift", "Div", "Exp", "Greater", "GreaterOrEqual", "Less", "LessOrEqual",
		"Log", "MatMul", "Max", "Mean", "Min", "Mul", "Neg", "Pow", "ReduceL1", "ReduceL2",
		"ReduceLogSum", "ReduceLogSumExp", "ReduceMax", "ReduceMean", "ReduceMin", "ReduceProd",
		"ReduceSum", "ReduceSumSquare", "Relu", "Sigmoid", "Sign", "Sin", "Softmax", "Softplus",
		"Softsign", "Sqrt", "Sub", "Sum", "Tanh", "Where",
	}
	nnOps = []string{
		"AveragePool", "Conv", "ConvTranspose", "GlobalAveragePool", "GlobalMaxPool",
		"InstanceNormalization", "MaxPool",
	}
	controlFlowOps = []string{"Loop", "Scan"}
	logicalOps     = []string{"And", "Equal", "Not", "Or", "Xor"}
	randomOps      = []string{"RandomUniform", "RandomUniformLike", "RandomNormal", "RandomNormalLike"}
	// Accepted by recent Sentis releases.
	extendedOps = []string{"Constant", "Gemm", "Clip", "BatchNormalization", "Shape", "Erf", "Resize", "Pad", "LSTM"}
)

// Registry is the set of operator types a runtime accepts.
type Registry struct {
	ops map[string]struct{}
}

// NewRegistry creates a registry holding the Unity Sentis 2.1.x operator set.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]struct{})}

	r.registerAll(tensorOps)
	r.registerAll(mathOps)
	r.registerAll(nnOps)
	r.registerAll(controlFlowOps)
	r.registerAll(logicalOps)
	r.registerAll(randomOps)
	r.registerAll(extendedOps)

	return r
}

// NewEmptyRegistry creates a registry that supports nothing.
func NewEmptyRegistry() *Registry {
	return &Registry{ops: make(map[string]struct{})}
}

func (r *Registry) registerAll(ops []string) {
	for _, op := range ops {
		r.Register(op)
	}
}

// Register marks opType as supported. Empty names are ignored.
func (r *Registry) Register(opType string) {
	if opType == "" {
		return
	}
	r.ops[opType] = struct{}{}
}

// Supports reports whether opType is supported.
func (r *Registry) Supports(opType string) bool {
	_, ok := r.ops[opType]
	return ok
}

// Len returns the number of supported operator types.
func (r *Registry) Len() int {
	return len(r.ops)
}

// SupportedOps returns all supported operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
