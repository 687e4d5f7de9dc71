// Package awserr classifies failures from the S3 and SNS clients into a
// small taxonomy with actionable remediation text.
package awserr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
)

// Kind is the category of a classified failure
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthorization
	KindNotFound
	KindTransport
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrConfiguration = errors.New("configuration error")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
	ErrTransport     = errors.New("transport error")
	ErrParse         = errors.New("parse error")
	ErrUnknown       = errors.New("unknown error")
)

// Services
const (
	ServiceS3  = "s3"
	ServiceSNS = "sns"
)

// Error is a classified cloud failure
type Error struct {
	Kind       Kind
	Service    string
	Op         string
	Code       string // provider error code, e.g. AccessDenied
	StatusCode int    // 0 when no HTTP response was received
	Message    string
	Err        error

	// InvalidCredentials separates rejected keys from permission failures
	// within KindAuthorization.
	InvalidCredentials bool
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Service != "" {
		b.WriteString(e.Service)
		if e.Op != "" {
			b.WriteString(" ")
			b.WriteString(e.Op)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrAuthorization:
		return e.Kind == KindAuthorization
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrParse:
		return e.Kind == KindParse
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

// Remediation returns a hint on how to fix the failure
func (e *Error) Remediation() string {
	switch e.Kind {
	case KindConfiguration:
		if e.Code != "" {
			return "Check the topic ARN, endpoint format and message size."
		}
		return "Check your .env file or config and set the missing values."
	case KindAuthorization:
		if e.InvalidCredentials {
			return "Verify AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are correct and not expired."
		}
		if e.Service == ServiceSNS {
			return "Check IAM permissions: the user needs sns:Publish, sns:Subscribe and sns:ListTopics."
		}
		return "Check IAM permissions: the user needs s3:ListBucket and s3:GetObject on the bucket."
	case KindNotFound:
		if e.Service == ServiceSNS {
			return "Check SNS_TOPIC_ARN and that the topic exists in AWS_REGION."
		}
		return "Check S3_BUCKET_NAME and that the bucket exists in AWS_REGION."
	case KindTransport:
		return "Check network connectivity and the bucket's CORS policy (allow GET and HEAD from this origin)."
	case KindParse:
		return "The object is not a supported alert payload; it was skipped."
	default:
		return "Check the AWS console and the application logs for details."
	}
}

// Configuration builds a configuration error naming the missing keys
func Configuration(service, msg string, missing ...string) *Error {
	if len(missing) > 0 {
		msg = fmt.Sprintf("%s: missing %s", msg, strings.Join(missing, ", "))
	}
	return &Error{Kind: KindConfiguration, Service: service, Message: msg}
}

type httpStatus interface {
	HTTPStatusCode() int
}

// StatusCode extracts the HTTP status from err, or 0 when there was no response
func StatusCode(err error) int {
	var hs httpStatus
	if errors.As(err, &hs) {
		return hs.HTTPStatusCode()
	}
	return 0
}

// Classify maps a raw client error onto the taxonomy. Already classified
// errors are returned unchanged.
func Classify(service, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	out := &Error{Service: service, Op: op, Err: err, StatusCode: StatusCode(err)}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		out.Code = apiErr.ErrorCode()
	}

	switch {
	case isInvalidCredentialsCode(out.Code):
		out.Kind = KindAuthorization
		out.InvalidCredentials = true
		out.Message = "invalid credentials"
	case isAccessDeniedCode(out.Code) || out.StatusCode == http.StatusForbidden:
		out.Kind = KindAuthorization
		out.Message = "access denied"
	case isNotFoundCode(out.Code) || out.StatusCode == http.StatusNotFound:
		out.Kind = KindNotFound
		out.Message = notFoundMessage(service)
	case out.Code == "InvalidParameter" || out.Code == "InvalidParameterException":
		out.Kind = KindConfiguration
		out.Message = "invalid parameters"
	case errors.Is(err, context.Canceled):
		out.Kind = KindTransport
		out.Message = "request cancelled"
	case out.StatusCode == 0 && out.Code == "":
		out.Kind = KindTransport
		out.Message = "network error"
	default:
		out.Kind = KindUnknown
		out.Message = firstLine(err.Error())
	}
	return out
}

func isInvalidCredentialsCode(code string) bool {
	switch code {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidClientTokenId",
		"ExpiredToken", "UnrecognizedClientException", "InvalidToken":
		return true
	}
	return false
}

func isAccessDeniedCode(code string) bool {
	switch code {
	case "AccessDenied", "Forbidden", "AuthorizationError", "AccessDeniedException":
		return true
	}
	return false
}

func isNotFoundCode(code string) bool {
	switch code {
	case "NoSuchBucket", "NotFound", "NoSuchKey", "NotFoundException", "TopicDoesNotExistException":
		return true
	}
	return false
}

func notFoundMessage(service string) string {
	if service == ServiceSNS {
		return "topic not found"
	}
	return "bucket not found"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// IsRetryable reports whether a failure may succeed on retry
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	ce := Classify("", "", err)
	if ce.Kind == KindTransport {
		return true
	}
	return ce.StatusCode >= 500 || ce.StatusCode == http.StatusTooManyRequests
}
