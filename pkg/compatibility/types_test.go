package compatibility

import (
	"testing"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

func TestCompatibleTypes_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		consumer apimodel.Type
		provider apimodel.Type
		want     bool
	}{
		{"same atomic", apimodel.Int32, apimodel.Int32, true},
		{"different atomic", apimodel.Int64, apimodel.Int32, false},
		{"atomic vs string", apimodel.Int32, apimodel.UnboundedString(), false},
		{"unbounded strings", apimodel.UnboundedString(), apimodel.UnboundedString(), true},
		{"bounded into unbounded", apimodel.BoundedString(10), apimodel.UnboundedString(), true},
		{"unbounded into bounded", apimodel.UnboundedString(), apimodel.BoundedString(10), false},
		{"equal bounds", apimodel.BoundedString(10), apimodel.BoundedString(10), true},
		{"smaller bound", apimodel.BoundedString(5), apimodel.BoundedString(10), true},
		{"larger bound", apimodel.BoundedString(11), apimodel.BoundedString(10), false},
		{"same numeric", apimodel.Numeric(5, 0), apimodel.Numeric(5, 0), true},
		{"wider provider precision", apimodel.Numeric(5, 2), apimodel.Numeric(8, 2), true},
		{"narrower provider precision", apimodel.Numeric(8, 2), apimodel.Numeric(5, 2), false},
		{"different scale", apimodel.Numeric(5, 1), apimodel.Numeric(5, 2), false},
		{"lists of strings", apimodel.UnboundedList(apimodel.UnboundedString()), apimodel.UnboundedList(apimodel.UnboundedString()), true},
		{"bounded list into unbounded", apimodel.BoundedList(apimodel.Int32, 3), apimodel.UnboundedList(apimodel.Int32), true},
		{"unbounded list into bounded", apimodel.UnboundedList(apimodel.Int32), apimodel.BoundedList(apimodel.Int32, 3), false},
		{"list element mismatch", apimodel.UnboundedList(apimodel.Int64), apimodel.UnboundedList(apimodel.Int32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompatibleTypes(tt.consumer, tt.provider, NewTypeMap()); got != tt.want {
				t.Errorf("CompatibleTypes(%s, %s) = %v, want %v", tt.consumer, tt.provider, got, tt.want)
			}
		})
	}
}

func TestCompatibleTypes_Reflexive(t *testing.T) {
	types := []apimodel.Type{
		apimodel.Int32, apimodel.Int64, apimodel.Boolean,
		apimodel.UnboundedString(), apimodel.BoundedString(3),
		apimodel.Numeric(10, 4),
		apimodel.BoundedList(apimodel.BoundedString(2), 7),
	}
	for _, typ := range types {
		if !CompatibleTypes(typ, typ, NewTypeMap()) {
			t.Errorf("%s is not compatible with itself", typ)
		}
	}
}

func TestCompatibleTypes_UserDefinedTypes(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	consumerA := cb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	consumerE := cb.AddEnum(apimodel.EnumSpec{Name: "E", TypeID: 1})
	if _, err := cb.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	providerA := pb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	providerB := pb.AddRecord(apimodel.RecordSpec{Name: "B", TypeID: 1})
	providerE := pb.AddEnum(apimodel.EnumSpec{Name: "E", TypeID: 2})
	if _, err := pb.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	types := NewTypeMap()
	if CompatibleTypes(consumerA, providerA, types) {
		t.Error("unmapped record types must not be compatible")
	}

	types.Put(consumerA, providerA)
	types.Put(consumerE, providerE)

	if !CompatibleTypes(consumerA, providerA, types) {
		t.Error("expected mapped record to be compatible with its image")
	}
	if CompatibleTypes(consumerA, providerB, types) {
		t.Error("record must not be compatible with a type other than its image")
	}
	if !CompatibleTypes(apimodel.BoundedList(consumerA, 4), apimodel.UnboundedList(providerA), types) {
		t.Error("expected list of mapped records to be compatible")
	}
	if !CompatibleTypes(consumerE, providerE, types) {
		t.Error("expected mapped enum to be compatible with its image")
	}
	if CompatibleTypes(consumerE, providerA, types) {
		t.Error("enum must not be compatible with a record")
	}
	if types.Len() != 2 {
		t.Errorf("Len() = %d, want 2", types.Len())
	}
}
