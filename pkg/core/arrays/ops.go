// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// newLike returns a zero array with the same dimensions as a.
func newLike(a Array) Array {
	return Array{dims: slices.Clone(a.dims), data: make([]float64, len(a.data))}
}

// Add returns the elementwise a + b.
func Add(a, b Array) Array {
	AssertSameShape("Add", a, b)
	out := newLike(a)
	floats.AddTo(out.data, a.data, b.data)
	return out
}

// Sub returns the elementwise a - b.
func Sub(a, b Array) Array {
	AssertSameShape("Sub", a, b)
	out := newLike(a)
	floats.SubTo(out.data, a.data, b.data)
	return out
}

// Mul returns the elementwise a * b.
func Mul(a, b Array) Array {
	AssertSameShape("Mul", a, b)
	out := newLike(a)
	floats.MulTo(out.data, a.data, b.data)
	return out
}

// Scale returns c * a.
func Scale(a Array, c float64) Array {
	a.AssertOk()
	out := newLike(a)
	floats.ScaleTo(out.data, c, a.data)
	return out
}

// AddScalar returns a + c, for every element of a.
func AddScalar(a Array, c float64) Array {
	out := a.Clone()
	floats.AddConst(c, out.data)
	return out
}

// Map returns an array with fn applied to every element of a.
func Map(a Array, fn func(x float64) float64) Array {
	a.AssertOk()
	out := newLike(a)
	for ii, x := range a.data {
		out.data[ii] = fn(x)
	}
	return out
}

// Sum returns the elementwise sum of all the given arrays, which must share the same shape.
func Sum(arrays ...Array) Array {
	if len(arrays) == 0 {
		exceptions.Panicf("arrays.Sum requires at least one operand")
	}
	AssertSameShape("Sum", arrays...)
	out := arrays[0].Clone()
	for _, a := range arrays[1:] {
		floats.Add(out.data, a.data)
	}
	return out
}

// MeanOf returns the elementwise mean of all the given arrays, which must share the same shape.
func MeanOf(arrays ...Array) Array {
	total := Sum(arrays...)
	return Scale(total, 1.0/float64(len(arrays)))
}

// ReduceSum returns the sum of all elements of a.
func ReduceSum(a Array) float64 {
	a.AssertOk()
	return floats.Sum(a.data)
}

// ReduceMean returns the mean of all elements of a.
func ReduceMean(a Array) float64 {
	return ReduceSum(a) / float64(a.Size())
}

// Dot returns the inner product of two arrays of the same shape.
func Dot(a, b Array) float64 {
	AssertSameShape("Dot", a, b)
	return floats.Dot(a.data, b.data)
}

// asMatrix returns a gonum view of the rank-2 array m. The view shares the data, and it is only
// used for reading.
func asMatrix(op string, m Array) *mat.Dense {
	m.AssertOk()
	if m.Rank() != 2 {
		panic(errors.Wrapf(ErrShapeMismatch, "%s: matrix operand must have rank 2, got dimensions %v", op, m.dims))
	}
	return mat.NewDense(m.dims[0], m.dims[1], m.data)
}

func asVector(op string, v Array) *mat.VecDense {
	v.AssertOk()
	if v.Rank() != 1 {
		panic(errors.Wrapf(ErrShapeMismatch, "%s: vector operand must have rank 1, got dimensions %v", op, v.dims))
	}
	return mat.NewVecDense(v.dims[0], v.data)
}

// MatVec returns the matrix-vector product m·x, where m has dimensions [rows, cols] and x [cols].
// The result has dimensions [rows].
func MatVec(m, x Array) Array {
	mm, xv := asMatrix("MatVec", m), asVector("MatVec", x)
	rows, cols := mm.Dims()
	if xv.Len() != cols {
		panic(errors.Wrapf(ErrShapeMismatch, "MatVec: matrix %v can't multiply vector %v", m.dims, x.dims))
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(mm, xv)
	return FromFlat(out.RawVector().Data, rows)
}

// MatTVec returns the transposed matrix-vector product mᵀ·y, where m has dimensions [rows, cols]
// and y [rows]. The result has dimensions [cols].
func MatTVec(m, y Array) Array {
	mm, yv := asMatrix("MatTVec", m), asVector("MatTVec", y)
	rows, cols := mm.Dims()
	if yv.Len() != rows {
		panic(errors.Wrapf(ErrShapeMismatch, "MatTVec: transposed matrix %v can't multiply vector %v", m.dims, y.dims))
	}
	out := mat.NewVecDense(cols, nil)
	out.MulVec(mm.T(), yv)
	return FromFlat(out.RawVector().Data, cols)
}

// Outer returns the outer product x·yᵀ of two vectors, with dimensions [len(x), len(y)].
func Outer(x, y Array) Array {
	xv, yv := asVector("Outer", x), asVector("Outer", y)
	var out mat.Dense
	out.Outer(1.0, xv, yv)
	return FromFlat(out.RawMatrix().Data, xv.Len(), yv.Len())
}
