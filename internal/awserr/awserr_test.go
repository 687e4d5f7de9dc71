package awserr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

// statusErr carries an HTTP status the way smithy's ResponseError does
type statusErr struct {
	status int
	err    error
}

func (e *statusErr) Error() string       { return fmt.Sprintf("http %d: %v", e.status, e.err) }
func (e *statusErr) Unwrap() error       { return e.err }
func (e *statusErr) HTTPStatusCode() int { return e.status }

func apiErr(code string, status int) error {
	return &statusErr{status: status, err: &smithy.GenericAPIError{Code: code, Message: code}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantStatus  int
		invalidCred bool
	}{
		{"failed to fetch", errors.New("TypeError: Failed to fetch"), KindTransport, 0, false},
		{"dial error", fmt.Errorf("send request: %w", errors.New("dial tcp: no such host")), KindTransport, 0, false},
		{"access denied 403", apiErr("AccessDenied", 403), KindAuthorization, 403, false},
		{"bare 403", apiErr("", 403), KindAuthorization, 403, false},
		{"no such bucket", apiErr("NoSuchBucket", 404), KindNotFound, 404, false},
		{"head bucket 404", apiErr("NotFound", 404), KindNotFound, 404, false},
		{"invalid key", apiErr("InvalidAccessKeyId", 403), KindAuthorization, 403, true},
		{"bad signature", apiErr("SignatureDoesNotMatch", 403), KindAuthorization, 403, true},
		{"sns auth", apiErr("AuthorizationError", 403), KindAuthorization, 403, false},
		{"server error", apiErr("InternalError", 500), KindUnknown, 500, false},
		{"cancelled", context.Canceled, KindTransport, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(ServiceS3, "ListObjectsV2", tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if got.InvalidCredentials != tt.invalidCred {
				t.Errorf("InvalidCredentials = %v, want %v", got.InvalidCredentials, tt.invalidCred)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(ServiceS3, "op", nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := Configuration(ServiceS3, "storage not configured", "S3_BUCKET_NAME")
	wrapped := fmt.Errorf("listing: %w", orig)

	if got := Classify(ServiceS3, "ListObjectsV2", wrapped); got != orig {
		t.Errorf("Classify should return the existing *Error, got %v", got)
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Classify(ServiceS3, "HeadBucket", apiErr("NoSuchBucket", 404)))

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false, want true")
	}
	if errors.Is(err, ErrAuthorization) {
		t.Error("errors.Is(err, ErrAuthorization) = true, want false")
	}
}

func TestRemediation(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		contain string
	}{
		{"s3 permissions", Classify(ServiceS3, "ListObjectsV2", apiErr("AccessDenied", 403)), "s3:ListBucket"},
		{"sns permissions", Classify(ServiceSNS, "Publish", apiErr("AuthorizationError", 403)), "sns:Publish"},
		{"credentials", Classify(ServiceS3, "HeadBucket", apiErr("InvalidAccessKeyId", 403)), "AWS_ACCESS_KEY_ID"},
		{"transport", Classify(ServiceS3, "HeadBucket", errors.New("Failed to fetch")), "CORS"},
		{"bucket", Classify(ServiceS3, "HeadBucket", apiErr("NoSuchBucket", 404)), "S3_BUCKET_NAME"},
		{"topic", Classify(ServiceSNS, "GetTopicAttributes", apiErr("NotFound", 404)), "SNS_TOPIC_ARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Remediation(); !strings.Contains(got, tt.contain) {
				t.Errorf("Remediation() = %q, want it to contain %q", got, tt.contain)
			}
		})
	}
}

func TestConfiguration(t *testing.T) {
	err := Configuration(ServiceS3, "storage not configured", "AWS_ACCESS_KEY_ID", "S3_BUCKET_NAME")

	if !errors.Is(err, ErrConfiguration) {
		t.Error("Configuration error should match ErrConfiguration")
	}
	msg := err.Error()
	for _, key := range []string{"AWS_ACCESS_KEY_ID", "S3_BUCKET_NAME"} {
		if !strings.Contains(msg, key) {
			t.Errorf("Error() = %q, should name %s", msg, key)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection reset by peer"), true},
		{"throttled", apiErr("SlowDown", 503), true},
		{"access denied", apiErr("AccessDenied", 403), false},
		{"not found", apiErr("NoSuchBucket", 404), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
