package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecode_RoutesByType(t *testing.T) {
	in := &DivisionMsg{Type: TypeDivision, ProtocolVersion: Version, Parent: 1, Offspring: 2, OffspringLen: 50, Target: Cell{3, 4}}
	b, _ := json.Marshal(in)

	ev, ok, err := Decode(b)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	out, isDiv := ev.(*DivisionMsg)
	if !isDiv {
		t.Fatalf("decoded %T", ev)
	}
	if out.Offspring != 2 || out.Target != (Cell{3, 4}) {
		t.Fatalf("decoded=%+v", out)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, ok, err := Decode([]byte(`{"type":"HELLO"}`))
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if _, _, err := Decode([]byte(`{`)); err == nil {
		t.Fatalf("expected error on malformed json")
	}
}
