package anvil

import "testing"

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		InvalidArgument:    "invalid-argument",
		OutOfMemory:        "out-of-memory",
		NoBackend:          "no-backend",
		UnsupportedFeature: "unsupported-feature",
		IO:                 "io",
		InternalError:      "internal-error",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestErrorKindStringUnknownValue(t *testing.T) {
	if got := ErrorKind(999).String(); got != "?error" {
		t.Errorf("expected an out-of-range ErrorKind to stringify to ?error, got %q", got)
	}
}

func TestNewErrorFormatsMessage(t *testing.T) {
	err := newError(InvalidArgument, "bad field %d", 3)
	if err.Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err.Kind)
	}
	if err.Msg != "bad field 3" {
		t.Fatalf("expected formatted message, got %q", err.Msg)
	}
	want := "anvil: invalid-argument: bad field 3"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
