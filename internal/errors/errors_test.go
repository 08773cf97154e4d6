package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestClassifiedErrorFormat(t *testing.T) {
	err := BuildError("packager exited nonzero").
		WithContext("platform", "linux").
		Build()

	msg := err.Error()
	if !strings.Contains(msg, "[build:error]") {
		t.Errorf("Error() = %q, want category/severity prefix", msg)
	}
	if !strings.Contains(msg, "packager exited nonzero") {
		t.Errorf("Error() = %q, want message", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("exit status 1")
	err := WrapError(cause, CategoryArchive, "zip invocation failed").Build()

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "exit status 1") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}

func TestIsCategory(t *testing.T) {
	err := ProvisioningError("python 3.11 not found").Build()

	if !IsCategory(err, CategoryProvisioning) {
		t.Error("expected provisioning category")
	}
	if IsCategory(err, CategoryBuild) {
		t.Error("unexpected build category")
	}

	// Wrapped once more through fmt, still classifiable.
	wrapped := fmt.Errorf("branch linux: %w", err)
	if !IsCategory(wrapped, CategoryProvisioning) {
		t.Error("classification lost through fmt wrapping")
	}
}

func TestBranchErrorsNeverRetry(t *testing.T) {
	for _, build := range []*ErrorBuilder{
		ProvisioningError("x"),
		DependencyError("x"),
		BuildError("x"),
		ArchiveError("x"),
		AuthorizationError("x"),
	} {
		if IsRetryable(build.Build()) {
			t.Errorf("branch error %s must not be retryable", build.Build().Category())
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	tests := []struct {
		err  error
		want int
	}{
		{ValidationError("bad ref").Build(), http.StatusBadRequest},
		{AuthorizationError("token scope").Build(), http.StatusUnauthorized},
		{NotFoundError("run").Build(), http.StatusNotFound},
		{AlreadyExistsError("asset").Build(), http.StatusConflict},
		{ForgeError("api 502").Build(), http.StatusBadGateway},
		{BuildError("synthesis").Build(), http.StatusUnprocessableEntity},
		{stderrors.New("plain"), http.StatusInternalServerError},
		{nil, http.StatusOK},
	}

	for _, tc := range tests {
		if got := adapter.StatusCodeFor(tc.err); got != tc.want {
			t.Errorf("StatusCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestGetCategoryFallback(t *testing.T) {
	if got := GetCategory(stderrors.New("plain")); got != CategoryInternal {
		t.Errorf("GetCategory(plain) = %s, want internal", got)
	}
}
