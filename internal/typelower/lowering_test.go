package typelower

import (
	"testing"

	"dtorgen/internal/decl"
	"dtorgen/internal/types"
)

const layoutDecls = `
[[type]]
name = "Point"
kind = "struct"
  [[type.field]]
  name = "x"
  type = "Int"
  [[type.field]]
  name = "y"
  type = "Int"

[[type]]
name = "Named"
kind = "struct"
  [[type.field]]
  name = "name"
  type = "String"

[[type]]
name = "Box"
kind = "struct"
generics = ["T"]
copyable = false
  [[type.field]]
  name = "value"
  type = "T"

[[type]]
name = "Opaque"
kind = "enum"
resilient = true
  [[type.case]]
  name = "empty"

[[type]]
name = "Node"
kind = "class"
  [[type.field]]
  name = "next"
  type = "Node?"
`

func TestTrivialityAndAddressOnly(t *testing.T) {
	prog, err := decl.Parse([]byte(layoutDecls))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	l := New(prog)

	resolve := func(src string) types.TypeID {
		id, err := prog.ResolveType(src, nil)
		if err != nil {
			t.Fatalf("resolve %s: %v", src, err)
		}
		return id
	}

	cases := []struct {
		src      string
		trivial  bool
		addrOnly bool
	}{
		{"Int", true, false},
		{"Point", true, false},
		{"Point?", true, false},
		{"Named", false, false},
		{"Node", false, false},
		{"Node?", false, false},
		{"Box<Int>", false, false},
		{"Opaque", true, true},
	}
	for _, tc := range cases {
		id := resolve(tc.src)
		if got := l.IsTrivial(id); got != tc.trivial {
			t.Errorf("%s trivial: got %v, want %v", tc.src, got, tc.trivial)
		}
		if got := l.IsAddressOnly(id); got != tc.addrOnly {
			t.Errorf("%s address-only: got %v, want %v", tc.src, got, tc.addrOnly)
		}
	}

	box, _ := prog.Lookup("Box")
	if !l.IsAddressOnly(box.Type) {
		t.Errorf("Box<T> should be address-only")
	}
}
