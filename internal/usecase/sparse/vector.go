package sparse

// Vector is a sparse bag-of-weighted-terms representation. Indices and
// Values are co-indexed; zero-weight terms carry no entry.
type Vector struct {
	Indices []int
	Values  []float64
}

// IsEmpty reports whether the vector has no non-zero entries.
func (v Vector) IsEmpty() bool { return len(v.Indices) == 0 }
