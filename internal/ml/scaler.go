package ml

import "gonum.org/v1/gonum/stat"

// StandardScaler centres each column and divides by its population standard deviation.
// Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns column statistics.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 {
		return ErrNotFitted
	}
	p := len(x[0])
	s.Mean = make([]float64, p)
	s.Scale = make([]float64, p)
	col := make([]float64, len(x))
	for j := 0; j < p; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = std
		if std == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

// TransformRow scales one row into a new slice.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if j >= len(s.Mean) {
			out[j] = v
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Transform scales every row.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.TransformRow(row)
	}
	return out
}
