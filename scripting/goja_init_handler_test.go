package scripting

import "testing"

type fakeContainer struct {
	Value int
}

func TestValidateRejectsSyntaxError(t *testing.T) {
	h := NewGojaInitHandler()
	if err := h.Validate(nil, []string{"self.Value = ;"}); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestValidateAcceptsWellFormedScript(t *testing.T) {
	h := NewGojaInitHandler()
	if err := h.Validate(nil, []string{"self.Value = 42;"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExecuteRunsCachedProgramAgainstContainer(t *testing.T) {
	h := NewGojaInitHandler()
	lines := []string{"self.Value = 7;"}
	if err := h.Validate(nil, lines); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	c := &fakeContainer{}
	var gotErr error
	h.Execute(c, lines, func(err error) { gotErr = err })
	if gotErr != nil {
		t.Fatalf("Execute: %v", gotErr)
	}
}

func TestExecuteReportsRuntimeErrorViaCallback(t *testing.T) {
	h := NewGojaInitHandler()
	lines := []string{"self.nonexistentMethod();"}

	var gotErr error
	h.Execute(&fakeContainer{}, lines, func(err error) { gotErr = err })
	if gotErr == nil {
		t.Fatalf("expected runtime error")
	}
}
