package engine

import (
	"testing"

	"github.com/tetratelabs/wazero/api"
)

func TestParseSignature(t *testing.T) {
	i32, i64, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF64

	tests := []struct {
		name    string
		input   string
		params  []api.ValueType
		results []api.ValueType
		wantErr bool
	}{
		{name: "default", input: DefaultSignature, params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		{name: "no params", input: "func() -> u64", results: []api.ValueType{i64}},
		{name: "no result", input: "func(a: bool, b: f64)", params: []api.ValueType{i32, f64}},
		{name: "tuple result", input: "func(x: s32) -> (u32, s64)", params: []api.ValueType{i32}, results: []api.ValueType{i32, i64}},
		{name: "unit result", input: "func(x: char) -> ()", params: []api.ValueType{i32}},
		{name: "spaces", input: "  func ( fd : s32 )->s32 ", params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		{name: "not a function", input: "s32", wantErr: true},
		{name: "string param", input: "func(s: string) -> s32", wantErr: true},
		{name: "unknown type", input: "func(fd: invalid-type-xyz) -> s32", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignature(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignature(%q): %v", tt.input, err)
			}
			if !equalTypes(sig.Params, tt.params) {
				t.Errorf("params = %v, want %v", sig.Params, tt.params)
			}
			if !equalTypes(sig.Results, tt.results) {
				t.Errorf("results = %v, want %v", sig.Results, tt.results)
			}
		})
	}
}

func TestSignature_Core(t *testing.T) {
	sig, err := ParseSignature(DefaultSignature)
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.Core(); got != "(i32) -> (i32)" {
		t.Errorf("Core() = %q", got)
	}
	if sig.String() != DefaultSignature {
		t.Errorf("String() = %q", sig.String())
	}
}

func TestSplitParams(t *testing.T) {
	got := splitParams("a: s32, b: tuple<u8, u16>, c: f32")
	if len(got) != 3 {
		t.Fatalf("splitParams = %q, want 3 parts", got)
	}
	if got[1] != "b: tuple<u8, u16>" {
		t.Errorf("nested part = %q", got[1])
	}
}
