package indexrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

func TestRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value interface{}
		rng   *IndexRange
		want  interface{}
	}{
		{
			name:  "whole array",
			value: []int32{1, 2, 3, 4, 5},
			rng:   MustParse("0:4"),
			want:  []int32{1, 2, 3, 4, 5},
		},
		{
			name:  "single index",
			value: []float64{1.5, 2.5, 3.5},
			rng:   MustParse("1"),
			want:  []float64{2.5},
		},
		{
			name:  "high bound clamped",
			value: []int32{1, 2, 3, 4, 5},
			rng:   MustParse("2:10"),
			want:  []int32{3, 4, 5},
		},
		{
			name:  "matrix element",
			value: [][]int32{{0, 1}, {2, 3}},
			rng:   MustParse("0,1"),
			want:  [][]int32{{1}},
		},
		{
			name:  "matrix block",
			value: [][]int32{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}},
			rng:   MustParse("1:2,0:1"),
			want:  [][]int32{{3, 4}, {6, 7}},
		},
		{
			name:  "outer dimension only",
			value: [][]int32{{0, 1}, {2, 3}, {4, 5}},
			rng:   MustParse("1:2"),
			want:  [][]int32{{2, 3}, {4, 5}},
		},
		{
			name:  "string",
			value: "hello",
			rng:   MustParse("1:3"),
			want:  "ell",
		},
		{
			name:  "string by character",
			value: "héllo",
			rng:   MustParse("1:2"),
			want:  "él",
		},
		{
			name:  "xml element keeps its type",
			value: opcua.XMLElement("<a/>"),
			rng:   MustParse("0:1"),
			want:  opcua.XMLElement("<a"),
		},
		{
			name:  "byte string",
			value: []byte{1, 2, 3, 4},
			rng:   MustParse("1:2"),
			want:  []byte{2, 3},
		},
		{
			name:  "characters of string array elements",
			value: []string{"abc", "defg"},
			rng:   MustParse("1,1:2"),
			want:  []string{"ef"},
		},
		{
			name:  "bytes of byte string array elements",
			value: [][]byte{{1, 2, 3}, {4, 5, 6}},
			rng:   MustParse("0:1,2"),
			want:  [][]byte{{3}, {6}},
		},
		{
			name:  "interface array",
			value: []interface{}{[]int32{1, 2}, []int32{3, 4}},
			rng:   MustParse("1,0"),
			want:  []interface{}{[]int32{3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(tt.value, tt.rng)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead_NoData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value interface{}
		rng   *IndexRange
	}{
		{"nil value", nil, MustParse("0")},
		{"scalar", int32(5), MustParse("0")},
		{"struct", opcua.QualifiedName{Name: "x"}, MustParse("0")},
		{"low bound at length", []int32{1, 2, 3, 4, 5}, MustParse("5")},
		{"low bound past length", []int32{1, 2}, MustParse("3:4")},
		{"low bound past string", "abc", MustParse("3")},
		{"low bound past bytes", []byte{1}, MustParse("1:2")},
		{"low bound past outer dimension", [][]int32{{1}}, MustParse("1,0")},
		{"range deeper than value", []int32{1, 2}, MustParse("0,0")},
		{"string at outer dimension", "abc", MustParse("0,0")},
		{"empty slice", []int32{}, MustParse("0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.value, tt.rng)
			require.Error(t, err)
			assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
		})
	}
}

func TestRead_DoesNotAlias(t *testing.T) {
	t.Parallel()

	src := []int32{1, 2, 3}
	got, err := Read(src, MustParse("0:1"))
	require.NoError(t, err)

	got.([]int32)[0] = 99
	assert.Equal(t, []int32{1, 2, 3}, src)
}

func TestRead_NilRange(t *testing.T) {
	t.Parallel()

	_, err := Read([]int32{1}, nil)
	assert.ErrorIs(t, err, opcua.StatusBadIndexRangeInvalid)
}

func TestReadVariant(t *testing.T) {
	t.Parallel()

	v := opcua.NewVariant(opcua.TypeInt16, []int16{10, 20, 30})
	got, err := ReadVariant(v, MustParse("1:2"))
	require.NoError(t, err)
	assert.Equal(t, opcua.TypeInt16, got.Type)
	assert.Equal(t, []int16{20, 30}, got.Value)

	_, err = ReadVariant(nil, MustParse("0"))
	assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
}

func TestReadDataValue(t *testing.T) {
	t.Parallel()

	dv := opcua.DataValue{Value: opcua.NewVariant(opcua.TypeString, "abcdef")}
	got, err := ReadDataValue(dv, MustParse("2:3"))
	require.NoError(t, err)
	assert.Equal(t, "cd", got.Value.Value)

	_, err = ReadDataValue(opcua.DataValue{StatusCode: opcua.StatusBadNodeIdUnknown}, MustParse("0"))
	assert.ErrorIs(t, err, opcua.StatusBadIndexRangeNoData)
}
