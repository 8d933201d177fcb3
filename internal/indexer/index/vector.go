package index

import "math"

// Vector is a sparse row in term space. Indices are vocabulary columns in
// ascending order and Values holds the weight at each column.
type Vector struct {
	Indices []int     `cbor:"1,keyasint"`
	Values  []float64 `cbor:"2,keyasint"`
}

// Len returns the number of non-zero entries.
func (v Vector) Len() int { return len(v.Indices) }

// IsZero reports whether v has no non-zero entries.
func (v Vector) IsZero() bool { return len(v.Indices) == 0 }

// Norm returns the L2 norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product of v and o by merging their index lists.
func (v Vector) Dot(o Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += v.Values[i] * o.Values[j]
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Weight returns the value at column c, or zero.
func (v Vector) Weight(c int) float64 {
	lo, hi := 0, len(v.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case v.Indices[mid] == c:
			return v.Values[mid]
		case v.Indices[mid] < c:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0
}

// normalize scales v in place to unit L2 length. Zero vectors are left
// untouched.
func normalize(v Vector) Vector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	for i := range v.Values {
		v.Values[i] /= n
	}
	return v
}

// Posting is one non-zero cell of the document-term matrix seen from the
// term side.
type Posting struct {
	Doc    int
	Weight float64
}

// PostingList holds postings in ascending document order.
type PostingList []Posting
