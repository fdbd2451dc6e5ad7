package features

import "fmt"

// Matrix maps fused rows onto a feature matrix in the given column order.
// Every name must be a known feature; an unknown name means the caller is
// holding a contract this row set cannot satisfy.
func Matrix(rows []FusedRow, order []string) ([][]float64, error) {
	data := make([][]float64, len(rows))
	for i, row := range rows {
		vec, err := Vector(row, order)
		if err != nil {
			return nil, err
		}
		data[i] = vec
	}
	return data, nil
}

// Vector maps a single fused row onto the given column order.
func Vector(row FusedRow, order []string) ([]float64, error) {
	vec := make([]float64, len(order))
	for i, name := range order {
		v, ok := row.Feature(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		vec[i] = v
	}
	return vec, nil
}
