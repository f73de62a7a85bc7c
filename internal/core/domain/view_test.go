package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestViewSpec_Validate tests spec-level rejections
func TestViewSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ViewSpec
		wantErr bool
	}{
		{
			name: "valid",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns:    []ViewColumn{{Name: "camis", Field: "camis", Type: TypeText}},
			},
		},
		{
			name: "bad view name",
			spec: ViewSpec{
				Name:       "my view",
				NaturalKey: []string{"camis"},
			},
			wantErr: true,
		},
		{
			name:    "no natural key",
			spec:    ViewSpec{},
			wantErr: true,
		},
		{
			name: "empty key field",
			spec: ViewSpec{
				NaturalKey: []string{"camis", ""},
			},
			wantErr: true,
		},
		{
			name: "key field with space",
			spec: ViewSpec{
				NaturalKey: []string{"inspection date"},
				Columns:    []ViewColumn{{Name: "camis", Field: "camis", Type: TypeText}},
			},
			wantErr: true,
		},
		{
			name: "no columns",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
			},
			wantErr: true,
		},
		{
			name: "bad column name",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns:    []ViewColumn{{Name: "1col", Field: "x", Type: TypeText}},
			},
			wantErr: true,
		},
		{
			name: "duplicate column",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns: []ViewColumn{
					{Name: "score", Field: "score", Type: TypeInteger},
					{Name: "score", Field: "grade", Type: TypeText},
				},
			},
			wantErr: true,
		},
		{
			name: "missing field",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns:    []ViewColumn{{Name: "score", Type: TypeInteger}},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns:    []ViewColumn{{Name: "score", Field: "score", Type: "decimal"}},
			},
			wantErr: true,
		},
		{
			name: "unknown cast rule",
			spec: ViewSpec{
				NaturalKey: []string{"camis"},
				Columns:    []ViewColumn{{Name: "score", Field: "score", Type: TypeInteger, Cast: "yolo"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestCastValue_Integer tests strict and lenient integer casts
func TestCastValue_Integer(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		rule   CastRule
		want   any
		wantOK bool
	}{
		{"plain digits", "42", CastStrict, int64(42), true},
		{"negative", "-7", CastStrict, int64(-7), true},
		{"number value", json.Number("13"), CastStrict, int64(13), true},
		{"strict rejects decimal", "42.0", CastStrict, nil, false},
		{"strict rejects text", "Not Applicable", CastStrict, nil, false},
		{"strict rejects padded", " 42 ", CastStrict, nil, false},
		{"strict rejects empty", "", CastStrict, nil, false},
		{"strict rejects leading zeros", "007", CastStrict, nil, false},
		{"lenient trims", " 42 ", CastLenient, int64(42), true},
		{"lenient rejects decimal", "42.0", CastLenient, nil, false},
		{"overflow projects null", "99999999999999999999", CastStrict, nil, false},
		{"nil is absent", nil, CastStrict, nil, false},
		{"nested fails", map[string]any{"x": 1}, CastStrict, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CastValue(tt.in, TypeInteger, tt.rule)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

// TestCastValue_Real tests floating point casts
func TestCastValue_Real(t *testing.T) {
	got, ok := CastValue("12.5", TypeReal, CastStrict)
	require.True(t, ok)
	assert.Equal(t, 12.5, got)

	got, ok = CastValue(json.Number("1e3"), TypeReal, CastStrict)
	require.True(t, ok)
	assert.Equal(t, 1000.0, got)

	_, ok = CastValue("12,5", TypeReal, CastStrict)
	assert.False(t, ok)

	_, ok = CastValue("NaN", TypeReal, CastStrict)
	assert.False(t, ok)

	_, ok = CastValue("007.5", TypeReal, CastStrict)
	assert.False(t, ok)
}

// TestCastValue_Boolean tests boolean casts under both rules
func TestCastValue_Boolean(t *testing.T) {
	got, ok := CastValue("true", TypeBoolean, CastStrict)
	require.True(t, ok)
	assert.Equal(t, true, got)

	got, ok = CastValue("0", TypeBoolean, CastStrict)
	require.True(t, ok)
	assert.Equal(t, false, got)

	_, ok = CastValue("YES", TypeBoolean, CastStrict)
	assert.False(t, ok)

	got, ok = CastValue("YES", TypeBoolean, CastLenient)
	require.True(t, ok)
	assert.Equal(t, true, got)

	got, ok = CastValue(true, TypeBoolean, CastStrict)
	require.True(t, ok)
	assert.Equal(t, true, got)
}

// TestCastValue_Date tests date casts including the lenient
// timestamp-prefix form
func TestCastValue_Date(t *testing.T) {
	got, ok := CastValue("2020-01-01", TypeDate, CastStrict)
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, ok = CastValue("2020-01-01T00:00:00.000", TypeDate, CastStrict)
	assert.False(t, ok)

	got, ok = CastValue("2020-01-01T00:00:00.000", TypeDate, CastLenient)
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, ok = CastValue("01/02/2020", TypeDate, CastStrict)
	assert.False(t, ok)
}

// TestCastValue_Timestamp tests the accepted timestamp layouts
func TestCastValue_Timestamp(t *testing.T) {
	for _, s := range []string{
		"2020-01-01T10:30:00Z",
		"2020-01-01T10:30:00",
		"2020-01-01 10:30:00",
	} {
		got, ok := CastValue(s, TypeTimestamp, CastStrict)
		require.True(t, ok, "layout %q", s)
		ts, isTime := got.(time.Time)
		require.True(t, isTime)
		assert.Equal(t, 10, ts.Hour())
	}

	_, ok := CastValue("soon", TypeTimestamp, CastStrict)
	assert.False(t, ok)
}

// TestCastValue_Text tests that text accepts scalar values verbatim
func TestCastValue_Text(t *testing.T) {
	got, ok := CastValue("Café\nLine2", TypeText, CastStrict)
	require.True(t, ok)
	assert.Equal(t, "Café\nLine2", got)

	got, ok = CastValue(json.Number("98.50"), TypeText, CastStrict)
	require.True(t, ok)
	assert.Equal(t, "98.50", got)

	_, ok = CastValue([]any{"a"}, TypeText, CastStrict)
	assert.False(t, ok)
}

// TestViewColumn_EffectiveCast tests the strict default
func TestViewColumn_EffectiveCast(t *testing.T) {
	assert.Equal(t, CastStrict, ViewColumn{}.EffectiveCast())
	assert.Equal(t, CastLenient, ViewColumn{Cast: CastLenient}.EffectiveCast())
}

func TestViewSpec_EffectiveColumns(t *testing.T) {
	spec := &ViewSpec{
		NaturalKey: []string{"camis", "inspection_date"},
		Columns: []ViewColumn{
			{Name: "inspection_date", Field: "inspection_date", Type: TypeDate},
			{Name: "score", Field: "score", Type: TypeInteger},
		},
	}

	got := spec.EffectiveColumns()
	require.Len(t, got, 3)

	// camis is not declared, so it projects first as text
	assert.Equal(t, ViewColumn{Name: "camis", Field: "camis", Type: TypeText}, got[0])
	// inspection_date is declared, the declared column wins
	assert.Equal(t, TypeDate, got[1].Type)
	assert.Equal(t, "score", got[2].Name)
}
