package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("line closed")
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"code", NotReady, NotReady},
		{"wrapped", Wrap(Timeout, "handshake", cause), Timeout},
		{"plain", cause, Error},
	}
	for _, tc := range cases {
		if got := Of(tc.err); got != tc.want {
			t.Errorf("%s: Of = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Error, "tx", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if err.Error() != "tx: error: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Wrap(Error, "tx", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}
