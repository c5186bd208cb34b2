package schemaval

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var supportedGenTypes = []arrow.DataType{
	arrow.BinaryTypes.String,
	arrow.PrimitiveTypes.Int64,
	arrow.PrimitiveTypes.Int32,
	arrow.PrimitiveTypes.Float64,
	arrow.FixedWidthTypes.Boolean,
	arrow.BinaryTypes.Binary,
	arrow.ListOf(arrow.PrimitiveTypes.Int64),
}

var unsupportedGenTypes = []arrow.DataType{
	arrow.ListOf(arrow.StructOf(arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Int64})),
	arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64)),
	arrow.StructOf(arrow.Field{Name: "x", Type: arrow.ListOf(arrow.ListOf(arrow.BinaryTypes.String))}),
}

// genSchema generates schemas mixing supported and unsupported field types.
func genSchema() gopter.Gen {
	genField := gen.Weighted([]gen.WeightedGen{
		{Weight: 3, Gen: gen.IntRange(0, len(supportedGenTypes)-1).Map(func(i int) arrow.DataType {
			return supportedGenTypes[i]
		})},
		{Weight: 1, Gen: gen.IntRange(0, len(unsupportedGenTypes)-1).Map(func(i int) arrow.DataType {
			return unsupportedGenTypes[i]
		})},
	})

	dataTypeKind := reflect.TypeOf((*arrow.DataType)(nil)).Elem()
	return gen.SliceOf(genField, dataTypeKind).Map(func(types []arrow.DataType) *arrow.Schema {
		fields := make([]arrow.Field, len(types))
		for i, dt := range types {
			fields[i] = arrow.Field{Name: fmt.Sprintf("f%d", i), Type: dt, Nullable: true}
		}
		return arrow.NewSchema(fields, nil)
	})
}

func TestReconcileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("survivors are exactly the supported fields, in order", prop.ForAll(
		func(schema *arrow.Schema) bool {
			r := New(PolicyIgnore, nil, nil)
			got, err := r.Reconcile(schema)
			if err != nil {
				return false
			}

			want := make([]string, 0, schema.NumFields())
			for _, f := range schema.Fields() {
				if IsDataTypeSupported(f.Type) {
					want = append(want, f.Name)
				}
			}

			if got.NumFields() != len(want) {
				return false
			}
			for i, name := range want {
				if got.Field(i).Name != name {
					return false
				}
			}
			return true
		},
		genSchema(),
	))

	properties.Property("reconciliation is idempotent", prop.ForAll(
		func(schema *arrow.Schema) bool {
			r := New(PolicyIgnore, nil, nil)
			once, err := r.Reconcile(schema)
			if err != nil {
				return false
			}
			twice, err := r.Reconcile(once)
			if err != nil {
				return false
			}
			return twice.Equal(once)
		},
		genSchema(),
	))

	properties.Property("fail policy errors exactly when a field is unsupported", prop.ForAll(
		func(schema *arrow.Schema) bool {
			hasUnsupported := false
			for _, f := range schema.Fields() {
				if !IsDataTypeSupported(f.Type) {
					hasUnsupported = true
					break
				}
			}

			r := New(PolicyFail, nil, nil)
			_, err := r.Reconcile(schema)
			return (err != nil) == hasUnsupported
		},
		genSchema(),
	))

	properties.TestingRun(t)
}
