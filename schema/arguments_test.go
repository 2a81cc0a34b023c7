package schema

import "testing"

func TestArguments(t *testing.T) {
	doc := FromStruct[testArgs](false)
	args := Arguments(doc)

	if len(args) != 2 {
		t.Fatalf("expected 2 arguments, got %d", len(args))
	}
	if args[0].Name != "query" || !args[0].Required {
		t.Errorf("args[0] = %+v, want required query", args[0])
	}
	if args[1].Name != "limit" || args[1].Required {
		t.Errorf("args[1] = %+v, want optional limit", args[1])
	}
}

func TestArgumentsNilDocument(t *testing.T) {
	if args := Arguments(nil); args != nil {
		t.Fatalf("expected nil, got %v", args)
	}
}
