package decl

import (
	"strings"
	"testing"

	"dtorgen/internal/types"
)

const nodeDecls = `
[[type]]
name = "Node"
kind = "class"
generics = ["T"]

  [[type.field]]
  name = "value"
  type = "T"

  [[type.field]]
  name = "next"
  type = "Node<T>?"

  [type.deinit]
  body = ["call log", "return"]

[[type]]
name = "Token"
kind = "struct"
copyable = false

  [[type.field]]
  name = "count"
  type = "Int"
`

func TestParseResolvesFieldsAndDestructors(t *testing.T) {
	prog, err := Parse([]byte(nodeDecls))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	node, ok := prog.Lookup("Node")
	if !ok {
		t.Fatalf("Node not declared")
	}
	next, ok := node.Field("next")
	if !ok {
		t.Fatalf("next field missing")
	}
	if want := prog.Types.Optional(node.Type); next.Type != want {
		t.Fatalf("next: got %s, want %s", prog.Types.String(next.Type), prog.Types.String(want))
	}
	if node.Destructor == nil || node.Destructor.Implicit {
		t.Fatalf("Node should carry its explicit deinit")
	}
	if got := len(node.Destructor.Body.Stmts); got != 2 {
		t.Fatalf("expected 2 statements, got %d", got)
	}

	token, _ := prog.Lookup("Token")
	if token.Destructor == nil || !token.Destructor.Implicit {
		t.Fatalf("non-copyable struct should get an implicit deinit")
	}
	if len(prog.Destructors()) != 2 {
		t.Fatalf("expected 2 destructors, got %d", len(prog.Destructors()))
	}
}

func TestParseSuperclassInSubclassContext(t *testing.T) {
	src := `
[[type]]
name = "Base"
kind = "class"
generics = ["U"]

[[type]]
name = "Derived"
kind = "class"
generics = ["T"]
superclass = "Base<T>"
`
	prog, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, _ := prog.Lookup("Derived")
	if d.Superclass == nil || d.Superclass.Decl.Name != "Base" {
		t.Fatalf("superclass not resolved")
	}
	args := prog.Types.Args(d.Superclass.Type)
	if len(args) != 1 || args[0] != prog.Types.GenericParam("T", 0) {
		t.Fatalf("superclass args should be [T], got %v", args)
	}
}

func TestParseRejectsInvalidDeclarations(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "copyable struct deinit",
			src: `
[[type]]
name = "S"
kind = "struct"
  [type.deinit]
  body = []
`,
			want: "non-copyable",
		},
		{
			name: "unknown field type",
			src: `
[[type]]
name = "C"
kind = "class"
  [[type.field]]
  name = "x"
  type = "Missing"
`,
			want: "unknown type Missing",
		},
		{
			name: "unknown key",
			src: `
[[type]]
name = "C"
kind = "class"
colour = "red"
`,
			want: "unknown keys",
		},
		{
			name: "isolated without isolation",
			src: `
[[type]]
name = "C"
kind = "class"
  [type.deinit]
  isolated = true
`,
			want: "needs an isolation",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseIsolation(t *testing.T) {
	iso, err := ParseIsolation("global:MainActor")
	if err != nil || iso.Kind != IsolationGlobalActor || iso.Actor != "MainActor" {
		t.Fatalf("unexpected isolation %+v, err %v", iso, err)
	}
	if _, err := ParseIsolation("sometimes"); err == nil {
		t.Fatalf("expected error for invalid isolation")
	}
}

func TestRemoteProxyFieldSelection(t *testing.T) {
	in := types.NewInterner()
	str := in.Builtins().String
	cases := []struct {
		field *Field
		want  bool
	}{
		{&Field{Name: "id", Type: str}, true},
		{&Field{Name: "actorSystem", Type: str}, true},
		{&Field{Name: "id", Type: str, Isolation: FieldActorInstance}, false},
		{&Field{Name: "name", Type: str}, false},
	}
	for _, tc := range cases {
		if got := IsRemoteProxyField(tc.field); got != tc.want {
			t.Errorf("%s (isolation %d): got %v, want %v", tc.field.Name, tc.field.Isolation, got, tc.want)
		}
	}
}
