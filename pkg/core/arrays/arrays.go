// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package arrays defines Array, the dense float64 multidimensional value that flows between
// computation nodes, along with the shape-checked numeric operations used by strategies.
//
// Shapes are normalized: an Array always has rank >= 1, so a scalar is represented with
// dimensions [1]. Zero-sized dimensions are not allowed.
//
// ## Shape errors
//
// Operations never broadcast. Whenever the shapes of the operands don't match, the operation
// panics with an error wrapping ErrShapeMismatch, with the name of the operation and the shapes
// involved. Use exceptions.TryCatch[error] and errors.Is to check for it, if needed.
//
// Arrays are values: operations always return newly allocated arrays and never modify their
// operands. The slices returned by Flat and Dims are owned by the Array and shouldn't be changed.
package arrays

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is wrapped by the errors thrown (panic) when operands have incompatible shapes.
var ErrShapeMismatch = errors.New("shape mismatch")

// Array is a dense multidimensional array of float64 values in row-major order.
type Array struct {
	dims []int
	data []float64
}

// Make returns an Array with the given dimensions filled with zeros.
// If no dimensions are given, it returns a zero scalar (dimensions [1]).
func Make(dims ...int) Array {
	dims = normalizeDims(dims)
	return Array{dims: dims, data: make([]float64, dimsSize(dims))}
}

// Full returns an Array with the given dimensions filled with value.
func Full(value float64, dims ...int) Array {
	a := Make(dims...)
	for ii := range a.data {
		a.data[ii] = value
	}
	return a
}

// Scalar returns an Array with dimensions [1] holding x.
func Scalar(x float64) Array {
	return Array{dims: []int{1}, data: []float64{x}}
}

// FromFlat creates an Array from the flat (row-major) data and the given dimensions.
// The data is copied.
//
// If no dimensions are given, data is taken to be a vector.
func FromFlat(data []float64, dims ...int) Array {
	if len(dims) == 0 {
		dims = []int{len(data)}
	}
	dims = normalizeDims(dims)
	if dimsSize(dims) != len(data) {
		panic(errors.Wrapf(ErrShapeMismatch, "arrays.FromFlat: %d values given for dimensions %v", len(data), dims))
	}
	return Array{dims: dims, data: slices.Clone(data)}
}

// FromValue converts a Go value to an Array. Accepted values are Array, float64, float32, int,
// []float64 and [][]float64 (which must not be ragged).
//
// Scalars are normalized to dimensions [1].
func FromValue(value any) Array {
	switch v := value.(type) {
	case Array:
		return v
	case *Array:
		return *v
	case float64:
		return Scalar(v)
	case float32:
		return Scalar(float64(v))
	case int:
		return Scalar(float64(v))
	case []float64:
		return FromFlat(v)
	case [][]float64:
		if len(v) == 0 {
			exceptions.Panicf("arrays.FromValue: empty [][]float64 given")
		}
		cols := len(v[0])
		data := make([]float64, 0, len(v)*cols)
		for row, values := range v {
			if len(values) != cols {
				panic(errors.Wrapf(ErrShapeMismatch, "arrays.FromValue: ragged [][]float64, row 0 has %d values, row %d has %d",
					cols, row, len(values)))
			}
			data = append(data, values...)
		}
		return FromFlat(data, len(v), cols)
	default:
		exceptions.Panicf("arrays.FromValue: unsupported type %T", value)
	}
	return Array{}
}

func normalizeDims(dims []int) []int {
	if len(dims) == 0 {
		return []int{1}
	}
	for axis, dim := range dims {
		if dim <= 0 {
			panic(errors.Wrapf(ErrShapeMismatch, "invalid dimensions %v: axis %d has dimension %d", dims, axis, dim))
		}
	}
	return slices.Clone(dims)
}

func dimsSize(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}

// Ok returns whether the Array was properly created. The zero value Array is not ok.
func (a Array) Ok() bool { return len(a.dims) > 0 }

// Dims returns the dimensions of the array. The returned slice shouldn't be changed.
func (a Array) Dims() []int { return a.dims }

// Rank is the number of axes of the array: always >= 1 for valid arrays.
func (a Array) Rank() int { return len(a.dims) }

// Size is the total number of elements.
func (a Array) Size() int { return len(a.data) }

// Flat returns the underlying values in row-major order. The returned slice shouldn't be changed.
func (a Array) Flat() []float64 { return a.data }

// Value returns the first element, handy for arrays of size 1.
func (a Array) Value() float64 {
	a.AssertOk()
	return a.data[0]
}

// At returns the element at the given indices, one per axis.
func (a Array) At(indices ...int) float64 {
	if len(indices) != len(a.dims) {
		exceptions.Panicf("Array.At: %d indices given for array of rank %d", len(indices), len(a.dims))
	}
	pos := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= a.dims[axis] {
			exceptions.Panicf("Array.At: index %d out of range for axis %d with dimension %d", idx, axis, a.dims[axis])
		}
		pos = pos*a.dims[axis] + idx
	}
	return a.data[pos]
}

// Clone returns a deep copy of the Array.
func (a Array) Clone() Array {
	return Array{dims: slices.Clone(a.dims), data: slices.Clone(a.data)}
}

// Reshape returns a copy of the array with new dimensions: the total size must be the same.
func (a Array) Reshape(dims ...int) Array {
	dims = normalizeDims(dims)
	if dimsSize(dims) != a.Size() {
		panic(errors.Wrapf(ErrShapeMismatch, "Array.Reshape: can't reshape %v to %v", a.dims, dims))
	}
	return Array{dims: dims, data: slices.Clone(a.data)}
}

// SameShape returns whether a and b have the same dimensions.
func (a Array) SameShape(b Array) bool {
	return slices.Equal(a.dims, b.dims)
}

// Equal returns whether a and b have the same shape and exactly the same values.
func (a Array) Equal(b Array) bool {
	return a.SameShape(b) && floats.Equal(a.data, b.data)
}

// InDelta returns whether a and b have the same shape and each pair of values are within delta
// (absolute or relative) of each other.
func (a Array) InDelta(b Array, delta float64) bool {
	return a.SameShape(b) && floats.EqualApprox(a.data, b.data, delta)
}

// ShapeString returns the dimensions formatted as "[d0 d1 ...]".
func (a Array) ShapeString() string {
	return fmt.Sprintf("%v", a.dims)
}

// String implements fmt.Stringer.
func (a Array) String() string {
	if !a.Ok() {
		return "Array(invalid)"
	}
	if a.Rank() == 1 {
		return fmt.Sprintf("%v", a.data)
	}
	var sb strings.Builder
	sb.WriteString(a.ShapeString())
	sb.WriteString(fmt.Sprintf("%v", a.data))
	return sb.String()
}

// AssertOk panics if the array was not properly created.
func (a Array) AssertOk() {
	if !a.Ok() {
		exceptions.Panicf("invalid Array (zero value) used")
	}
}

// AssertSameShape panics with an error wrapping ErrShapeMismatch if the arrays don't all share the
// same dimensions. The op name is used in the error message.
func AssertSameShape(op string, arrays ...Array) {
	if len(arrays) == 0 {
		return
	}
	for _, a := range arrays {
		a.AssertOk()
	}
	for ii, a := range arrays[1:] {
		if !a.SameShape(arrays[0]) {
			panic(errors.Wrapf(ErrShapeMismatch, "%s: operand #%d has dimensions %v, but operand #0 has dimensions %v",
				op, ii+1, a.dims, arrays[0].dims))
		}
	}
}
