package indexrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current interface{}
		update  interface{}
		rng     *IndexRange
		want    interface{}
	}{
		{
			name:    "array",
			current: []int32{1, 2, 3, 4, 5},
			update:  []int32{9, 8},
			rng:     MustParse("1:2"),
			want:    []int32{1, 9, 8, 4, 5},
		},
		{
			name:    "single index",
			current: []string{"a", "b", "c"},
			update:  []string{"z"},
			rng:     MustParse("2"),
			want:    []string{"a", "b", "z"},
		},
		{
			name:    "longer update uses leading elements",
			current: []int32{1, 2, 3},
			update:  []int32{7, 8, 9},
			rng:     MustParse("0:1"),
			want:    []int32{7, 8, 3},
		},
		{
			name:    "matrix column",
			current: [][]int32{{0, 1}, {2, 3}},
			update:  [][]int32{{7}, {8}},
			rng:     MustParse("0:1,1"),
			want:    [][]int32{{0, 7}, {2, 8}},
		},
		{
			name:    "matrix rows",
			current: [][]int32{{0, 1}, {2, 3}, {4, 5}},
			update:  [][]int32{{6, 7}},
			rng:     MustParse("1"),
			want:    [][]int32{{0, 1}, {6, 7}, {4, 5}},
		},
		{
			name:    "string",
			current: "hello",
			update:  "EY",
			rng:     MustParse("1:2"),
			want:    "hEYlo",
		},
		{
			name:    "byte string",
			current: []byte{1, 2, 3, 4},
			update:  []byte{9},
			rng:     MustParse("3"),
			want:    []byte{1, 2, 3, 9},
		},
		{
			name:    "interface array with typed update",
			current: []interface{}{int32(1), int32(2)},
			update:  []int32{7},
			rng:     MustParse("1"),
			want:    []interface{}{int32(1), int32(7)},
		},
		{
			name:    "typed array with interface update",
			current: []int32{1, 2},
			update:  []interface{}{int32(7)},
			rng:     MustParse("0"),
			want:    []int32{7, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Write(tt.current, tt.update, tt.rng)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite_DoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	current := [][]int32{{0, 1}, {2, 3}}
	update := [][]int32{{7}, {8}}

	got, err := Write(current, update, MustParse("0:1,0"))
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{7, 1}, {8, 3}}, got)
	assert.Equal(t, [][]int32{{0, 1}, {2, 3}}, current)
	assert.Equal(t, [][]int32{{7}, {8}}, update)
}

func TestWrite_ThenRead(t *testing.T) {
	t.Parallel()

	current := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	update := []float64{10, 11, 12}
	rng := MustParse("3:5")

	written, err := Write(current, update, rng)
	require.NoError(t, err)

	back, err := Read(written, rng)
	require.NoError(t, err)
	assert.Equal(t, update, back)

	w := written.([]float64)
	for i := range current {
		if !rng.Bounds[0].Contains(i) {
			assert.Equal(t, current[i], w[i], "index %d", i)
		}
	}
}

func TestWrite_BoundaryAsymmetry(t *testing.T) {
	t.Parallel()

	value := []int32{1, 2, 3, 4, 5}
	rng := MustParse("2:10")

	got, err := Read(value, rng)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4, 5}, got)

	_, err = Write(value, []int32{0, 0, 0, 0, 0, 0, 0, 0, 0}, rng)
	assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
}

func TestWrite_TypeMismatch(t *testing.T) {
	t.Parallel()

	current := []int32{1, 2, 3}

	got, err := Write(current, []float64{1.5}, MustParse("0"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)
	assert.Equal(t, []int32{1, 2, 3}, current)

	_, err = Write([][]int32{{1}, {2}}, [][]string{{"a"}}, MustParse("0,0"))
	assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)
}

func TestWrite_InterfaceSlices(t *testing.T) {
	t.Parallel()

	got, err := Write([]interface{}{int32(1), int32(2)}, []interface{}{int32(5), "x"}, MustParse("0:1"))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(5), "x"}, got)

	_, err = Write([]interface{}{int32(1), int32(2)}, []interface{}{"x", int32(5)}, MustParse("0:1"))
	assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)

	_, err = Write([]interface{}{int32(1), int32(2)}, []string{"x"}, MustParse("0"))
	assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)
}

func TestWrite_NoData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current interface{}
		update  interface{}
		rng     *IndexRange
	}{
		{"nil current", nil, []int32{1}, MustParse("0")},
		{"nil update", []int32{1}, nil, MustParse("0")},
		{"both nil", nil, nil, MustParse("0")},
		{"high bound past length", []int32{1, 2, 3}, []int32{1, 2, 3}, MustParse("1:3")},
		{"low bound past length", []int32{1, 2, 3}, []int32{1}, MustParse("3")},
		{"string high bound", "abc", "xyz", MustParse("1:3")},
		{"update too short", []int32{1, 2, 3}, []int32{9}, MustParse("0:1")},
		{"string update too short", "abc", "x", MustParse("0:1")},
		{"scalar update", []int32{1, 2}, int32(3), MustParse("0")},
		{"string with non-string update", "abc", []int32{1}, MustParse("0")},
		{"scalar current", int32(1), int32(2), MustParse("0")},
		{"range deeper than value", []int32{1, 2}, []int32{1}, MustParse("0,0")},
		{"ragged row", [][]int32{{1, 2}, {3}}, [][]int32{{9}, {9}}, MustParse("0:1,1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Write(tt.current, tt.update, tt.rng)
			require.Error(t, err)
			assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
		})
	}
}

func TestWriteVariant(t *testing.T) {
	t.Parallel()

	current := opcua.NewVariant(opcua.TypeUInt16, []uint16{1, 2, 3})
	update := opcua.NewVariant(opcua.TypeUInt16, []uint16{5, 6})

	got, err := WriteVariant(current, update, MustParse("1:2"))
	require.NoError(t, err)
	assert.Equal(t, opcua.TypeUInt16, got.Type)
	assert.Equal(t, []uint16{1, 5, 6}, got.Value)
	assert.Equal(t, []uint16{1, 2, 3}, current.Value)

	_, err = WriteVariant(current, nil, MustParse("0"))
	assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
}
