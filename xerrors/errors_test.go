package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyPreservesMessage(t *testing.T) {
	boom := errors.New("write concern not satisfied")
	err := Classify(boom, KindBackendWrite)

	if err.Error() != boom.Error() {
		t.Errorf("Message changed: got %q, want %q", err.Error(), boom.Error())
	}
	if !errors.Is(err, boom) {
		t.Error("Cause lost from chain")
	}
	if KindOf(err) != KindBackendWrite {
		t.Errorf("Kind = %v, want BackendWrite", KindOf(err))
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	err := Newf(KindPrecondition, "connection not open")
	reclassified := Classify(err, KindBackendWrite)
	if KindOf(reclassified) != KindPrecondition {
		t.Errorf("Kind = %v, want original Precondition", KindOf(reclassified))
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil, KindResolver) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf(KindConnection, "dial failed"))
	if KindOf(err) != KindConnection {
		t.Errorf("Kind = %v, want Connection", KindOf(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Newf(KindConfiguration, "bad settings"), http.StatusBadRequest},
		{Newf(KindResolver, "user fn failed"), http.StatusBadRequest},
		{Newf(KindPrecondition, "not open"), http.StatusServiceUnavailable},
		{Newf(KindConnection, "dial failed"), http.StatusServiceUnavailable},
		{Newf(KindBackendWrite, "chunk failed"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
