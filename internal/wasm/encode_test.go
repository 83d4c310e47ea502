package wasm

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestLEB128(t *testing.T) {
	u := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xE5, 0x8E, 0x26}},
	}
	for _, tt := range u {
		var b bytes.Buffer
		writeU32(&b, tt.v)
		if !bytes.Equal(b.Bytes(), tt.want) {
			t.Fatalf("u32 %d: got % x want % x", tt.v, b.Bytes(), tt.want)
		}
	}
	s := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7F}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-64, []byte{0x40}},
		{-123456, []byte{0xC0, 0xBB, 0x78}},
	}
	for _, tt := range s {
		var b bytes.Buffer
		writeS64(&b, tt.v)
		if !bytes.Equal(b.Bytes(), tt.want) {
			t.Fatalf("s64 %d: got % x want % x", tt.v, b.Bytes(), tt.want)
		}
	}
}

func testModule() *Module {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	pair := BlockType{i64, i64}
	add := &Function{
		Name: "pair",
		Type: FuncType{Params: []api.ValueType{i32}, Results: []api.ValueType{i64, i64}},
		Body: []Instr{
			LocalGet(0),
			If(pair,
				[]Instr{I64Const(42), I64Const(0)},
				[]Instr{I64Const(-1), I64Const(-1)}),
		},
	}
	bump := &Function{
		Name: "bump",
		Type: FuncType{Results: []api.ValueType{i32}},
		Body: []Instr{
			GlobalGet("sp"), I32Const(16), Op(OpI32Add), GlobalSet("sp"),
			I32Const(100), I32Const(0), I32Const(4), Op(OpMemoryCopy),
			I32Const(100), Load(i32, 0),
		},
	}
	m := &Module{
		Imports:     []Import{{Module: "env", Name: "log", Type: FuncType{Params: []api.ValueType{i32}}}},
		Funcs:       []*Function{add, bump},
		Globals:     []Global{{Name: "sp", Type: i32, Mutable: true, Init: 1024}},
		MemoryPages: 1,
		Exports: []Export{
			{Name: "pair", Kind: ExportFunc, Target: "pair"},
			{Name: "bump", Kind: ExportFunc, Target: "bump"},
			{Name: "memory", Kind: ExportMemory},
		},
		Data: []DataSegment{{Offset: 0, Bytes: []byte{7, 0, 0, 0}}},
	}
	return m
}

func TestEncodeRunsOnWazero(t *testing.T) {
	bin, err := Encode(testModule())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	_, err = rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(func(context.Context, uint32) {}).Export("log").
		Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := rt.Instantiate(ctx, bin)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	res, err := mod.ExportedFunction("pair").Call(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0] != 42 || res[1] != 0 {
		t.Fatalf("pair(1) = %v", res)
	}
	res, _ = mod.ExportedFunction("pair").Call(ctx, 0)
	if res[0] != ^uint64(0) || res[1] != ^uint64(0) {
		t.Fatalf("pair(0) = %v", res)
	}
	res, err = mod.ExportedFunction("bump").Call(ctx)
	if err != nil || res[0] != 7 {
		t.Fatalf("bump() = %v, %v", res, err)
	}
}

func TestValidateRejectsUnknownCall(t *testing.T) {
	m := testModule()
	m.Funcs[0].Body = append(m.Funcs[0].Body, Call("missing"))
	if _, err := Encode(m); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown call error, got %v", err)
	}
}

func TestDump(t *testing.T) {
	var b bytes.Buffer
	if err := Dump(&b, testModule()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"(func $pair (param i32) (result i64 i64)", "memory.copy", "global.set $sp"} {
		if !strings.Contains(b.String(), want) {
			t.Fatalf("dump lacks %q:\n%s", want, b.String())
		}
	}
}
