package schemaval

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
)

func listOfStruct() arrow.DataType {
	return arrow.ListOf(arrow.StructOf(
		arrow.Field{Name: "field", Type: arrow.PrimitiveTypes.Int64},
	))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input string
		want  Policy
		ok    bool
	}{
		{"fail", PolicyFail, true},
		{"error", PolicyFail, true},
		{"warn", PolicyWarn, true},
		{"ignore", PolicyIgnore, true},
		{"silent", PolicyIgnore, true},
		{" WARN ", PolicyWarn, true},
		{"explode", PolicyFail, false},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.input)
		if tt.ok {
			require.NoError(t, err, "input %q", tt.input)
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		} else {
			assert.Error(t, err, "input %q", tt.input)
		}
	}
}

func TestIsDataTypeSupported_Primitives(t *testing.T) {
	supported := []arrow.DataType{
		arrow.BinaryTypes.String,
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Float64,
		arrow.FixedWidthTypes.Boolean,
		arrow.BinaryTypes.Binary,
		arrow.FixedWidthTypes.Timestamp_us,
	}
	for _, dt := range supported {
		assert.True(t, IsDataTypeSupported(dt), "%s should be supported", dt)
	}
}

func TestIsDataTypeSupported_Lists(t *testing.T) {
	// lists of primitives, text, binary and boolean are fine
	assert.True(t, IsDataTypeSupported(arrow.ListOf(arrow.PrimitiveTypes.Int64)))
	assert.True(t, IsDataTypeSupported(arrow.ListOf(arrow.BinaryTypes.String)))
	assert.True(t, IsDataTypeSupported(arrow.ListOf(arrow.FixedWidthTypes.Boolean)))
	assert.True(t, IsDataTypeSupported(arrow.FixedSizeListOf(3, arrow.PrimitiveTypes.Float32)))
	assert.True(t, IsDataTypeSupported(arrow.LargeListOf(arrow.BinaryTypes.Binary)))

	// nested element types are not
	assert.False(t, IsDataTypeSupported(listOfStruct()), "list of struct should be unsupported")
	assert.False(t, IsDataTypeSupported(arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64))),
		"list of list should be unsupported")
}

func TestIsDataTypeSupported_Structs(t *testing.T) {
	flat := arrow.StructOf(
		arrow.Field{Name: "a", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "b", Type: arrow.PrimitiveTypes.Int64},
	)
	assert.True(t, IsDataTypeSupported(flat))

	nested := arrow.StructOf(
		arrow.Field{Name: "a", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "bad", Type: listOfStruct()},
	)
	assert.False(t, IsDataTypeSupported(nested), "struct containing an unsupported member should be unsupported")
}

// mixedSchema is the canonical reconciliation input: unsupported fields at
// positions c and e, survivors a, b, d, f.
func mixedSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.BinaryTypes.String},
		{Name: "b", Type: arrow.PrimitiveTypes.Int64},
		{Name: "c", Type: listOfStruct()},
		{Name: "d", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "e", Type: listOfStruct()},
		{Name: "f", Type: arrow.PrimitiveTypes.Float32},
	}, nil)
}

func supportedSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "string", Type: arrow.BinaryTypes.String},
		{Name: "int", Type: arrow.PrimitiveTypes.Int64},
		{Name: "float", Type: arrow.PrimitiveTypes.Float64},
		{Name: "bool", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "binary", Type: arrow.BinaryTypes.Binary},
	}, nil)
}

func TestReconcile_SupportedSchemaUnchanged(t *testing.T) {
	schema := supportedSchema()
	for _, policy := range []Policy{PolicyFail, PolicyWarn, PolicyIgnore} {
		r := New(policy, nil, nil)
		got, err := r.Reconcile(schema)
		require.NoError(t, err, "policy %s", policy)
		assert.Same(t, schema, got, "policy %s should return the original schema", policy)
	}
}

func TestReconcile_FailPolicyRejects(t *testing.T) {
	r := New(PolicyFail, nil, nil)
	_, err := r.Reconcile(mixedSchema())
	require.Error(t, err)

	var adapterErr *dbconn.Error
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, dbconn.ErrCategorySchema, adapterErr.Category)
	assert.Equal(t, "c", adapterErr.Details["field"], "error should name the first offending field")
}

func TestReconcile_DropPoliciesPreserveOrdering(t *testing.T) {
	want := []string{"a", "b", "d", "f"}

	for _, policy := range []Policy{PolicyWarn, PolicyIgnore} {
		r := New(policy, nil, nil)
		got, err := r.Reconcile(mixedSchema())
		require.NoError(t, err, "policy %s", policy)

		names := make([]string, 0, got.NumFields())
		for _, f := range got.Fields() {
			names = append(names, f.Name)
		}
		assert.Equal(t, want, names, "policy %s", policy)
	}
}

func TestReconcile_WarnPolicyLogsEachDroppedField(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(PolicyWarn, nil, zap.New(core))

	_, err := r.Reconcile(mixedSchema())
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ContextMap()["field"])
	assert.Equal(t, "e", entries[1].ContextMap()["field"])
}

func TestReconcile_IgnorePolicyIsSilent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := New(PolicyIgnore, nil, zap.New(core))

	_, err := r.Reconcile(mixedSchema())
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestReconcile_TypeAcceptorRejectsOtherwiseSupportedField(t *testing.T) {
	// structurally fine, but the engine has no counterpart for Int64
	rejectInt64 := func(dt arrow.DataType) bool {
		return dt.ID() != arrow.INT64
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "keep", Type: arrow.BinaryTypes.String},
		{Name: "drop", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	r := New(PolicyIgnore, rejectInt64, nil)
	got, err := r.Reconcile(schema)
	require.NoError(t, err)
	require.Equal(t, 1, got.NumFields())
	assert.Equal(t, "keep", got.Field(0).Name)

	r = New(PolicyFail, rejectInt64, nil)
	_, err = r.Reconcile(schema)
	assert.Error(t, err)
}
