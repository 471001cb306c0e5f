package sim

import "fmt"

// ComputeOp returns the compute function for a named built-in operation
// over the given ordered inputs. "diff" and "ratio" require exactly two
// inputs; "sum" and "mean" accept any number.
func ComputeOp(op string, inputs []string) (ComputeFunc, error) {
	switch op {
	case "sum":
		return func(values map[string]float64) float64 {
			var total float64
			for _, name := range inputs {
				total += values[name]
			}
			return total
		}, nil
	case "mean":
		if len(inputs) == 0 {
			return nil, fmt.Errorf("op %q requires at least one input", op)
		}
		return func(values map[string]float64) float64 {
			var total float64
			for _, name := range inputs {
				total += values[name]
			}
			return total / float64(len(inputs))
		}, nil
	case "diff":
		if len(inputs) != 2 {
			return nil, fmt.Errorf("op %q requires exactly two inputs, got %d", op, len(inputs))
		}
		return func(values map[string]float64) float64 {
			return values[inputs[0]] - values[inputs[1]]
		}, nil
	case "ratio":
		if len(inputs) != 2 {
			return nil, fmt.Errorf("op %q requires exactly two inputs, got %d", op, len(inputs))
		}
		return func(values map[string]float64) float64 {
			if values[inputs[1]] == 0 {
				return 0
			}
			return values[inputs[0]] / values[inputs[1]]
		}, nil
	}
	return nil, fmt.Errorf("unknown calc op %q", op)
}
