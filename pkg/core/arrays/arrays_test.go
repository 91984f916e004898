// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue(t *testing.T) {
	t.Run("scalars are normalized", func(t *testing.T) {
		for _, v := range []any{3.0, float32(3), 3} {
			a := FromValue(v)
			assert.Equal(t, []int{1}, a.Dims())
			assert.Equal(t, 3.0, a.Value())
		}
	})
	t.Run("vector", func(t *testing.T) {
		a := FromValue([]float64{1, 2, 3})
		assert.Equal(t, []int{3}, a.Dims())
		assert.Equal(t, 2.0, a.At(1))
	})
	t.Run("matrix", func(t *testing.T) {
		a := FromValue([][]float64{{1, 2, 3}, {4, 5, 6}})
		assert.Equal(t, []int{2, 3}, a.Dims())
		assert.Equal(t, 6.0, a.At(1, 2))
		assert.Equal(t, 2, a.Rank())
		assert.Equal(t, 6, a.Size())
	})
	t.Run("ragged matrix", func(t *testing.T) {
		err := exceptions.TryCatch[error](func() { FromValue([][]float64{{1, 2}, {3}}) })
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("data is copied", func(t *testing.T) {
		data := []float64{1, 2}
		a := FromValue(data)
		data[0] = 10
		assert.Equal(t, 1.0, a.At(0))
	})
	t.Run("unsupported", func(t *testing.T) {
		require.Panics(t, func() { FromValue("blah") })
	})
}

func TestMake(t *testing.T) {
	assert.Equal(t, []int{1}, Make().Dims())
	assert.True(t, Make(2, 2).Equal(FromFlat([]float64{0, 0, 0, 0}, 2, 2)))
	assert.True(t, Full(7, 3).Equal(FromValue([]float64{7, 7, 7})))
	err := exceptions.TryCatch[error](func() { Make(2, 0) })
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.False(t, Array{}.Ok())
}

func TestElementwise(t *testing.T) {
	a := FromValue([]float64{1, 2, 3})
	b := FromValue([]float64{4, 5, 6})
	assert.Equal(t, []float64{5, 7, 9}, Add(a, b).Flat())
	assert.Equal(t, []float64{-3, -3, -3}, Sub(a, b).Flat())
	assert.Equal(t, []float64{4, 10, 18}, Mul(a, b).Flat())
	assert.Equal(t, []float64{2, 4, 6}, Scale(a, 2).Flat())
	assert.Equal(t, []float64{2, 3, 4}, AddScalar(a, 1).Flat())
	assert.Equal(t, []float64{1, 4, 9}, Map(a, func(x float64) float64 { return x * x }).Flat())
	assert.Equal(t, []float64{6, 9, 12}, Sum(a, b, a).Flat())
	assert.Equal(t, []float64{2.5, 3.5, 4.5}, MeanOf(a, b).Flat())
	assert.Equal(t, 6.0, ReduceSum(a))
	assert.Equal(t, 2.0, ReduceMean(a))
	assert.Equal(t, 32.0, Dot(a, b))

	// Operands are not modified.
	assert.Equal(t, []float64{1, 2, 3}, a.Flat())
}

func TestShapeMismatch(t *testing.T) {
	a := FromValue([]float64{1, 2, 3})
	b := FromValue([]float64{1, 2})
	for name, fn := range map[string]func(){
		"Add":     func() { Add(a, b) },
		"Sub":     func() { Sub(a, b) },
		"Mul":     func() { Mul(a, b) },
		"Sum":     func() { Sum(a, b) },
		"Dot":     func() { Dot(a, b) },
		"Reshape": func() { a.Reshape(2, 2) },
		"MatVec":  func() { MatVec(FromValue([][]float64{{1, 2}, {3, 4}}), a) },
	} {
		t.Run(name, func(t *testing.T) {
			err := exceptions.TryCatch[error](fn)
			require.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestMatrixOps(t *testing.T) {
	m := FromValue([][]float64{{1, 2, 3}, {4, 5, 6}})
	x := FromValue([]float64{1, 0, -1})
	y := FromValue([]float64{1, 1})

	got := MatVec(m, x)
	assert.Equal(t, []int{2}, got.Dims())
	assert.Equal(t, []float64{-2, -2}, got.Flat())

	got = MatTVec(m, y)
	assert.Equal(t, []int{3}, got.Dims())
	assert.Equal(t, []float64{5, 7, 9}, got.Flat())

	got = Outer(y, x)
	assert.Equal(t, []int{2, 3}, got.Dims())
	assert.Equal(t, []float64{1, 0, -1, 1, 0, -1}, got.Flat())
}

func TestCompare(t *testing.T) {
	a := FromValue([]float64{1, 2})
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.Equal(FromValue([]float64{1, 2.0000001})))
	assert.True(t, a.InDelta(FromValue([]float64{1, 2.0000001}), 1e-6))
	assert.False(t, a.Equal(a.Reshape(2, 1)))
	assert.Equal(t, "[1 2]", a.String())
	assert.Equal(t, "[2 1][1 2]", a.Reshape(2, 1).String())
}
