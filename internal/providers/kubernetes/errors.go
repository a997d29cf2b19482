package kubernetes

import (
	"errors"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/otterscale/resource-adapter/internal/core"
)

// statusReasonToDomainCode maps Kubernetes StatusReason values to
// domain-level error codes. This keeps the K8s-specific mapping
// inside the adapter layer, preventing it from leaking into the
// core layer.
var statusReasonToDomainCode = map[metav1.StatusReason]core.ErrorCode{
	metav1.StatusReasonUnauthorized:          core.ErrorCodeUnauthenticated,
	metav1.StatusReasonForbidden:             core.ErrorCodePermissionDenied,
	metav1.StatusReasonNotFound:              core.ErrorCodeNotFound,
	metav1.StatusReasonAlreadyExists:         core.ErrorCodeAlreadyExists,
	metav1.StatusReasonConflict:              core.ErrorCodeFailedPrecondition,
	metav1.StatusReasonGone:                  core.ErrorCodeGone,
	metav1.StatusReasonInvalid:               core.ErrorCodeInvalidArgument,
	metav1.StatusReasonServerTimeout:         core.ErrorCodeDeadlineExceeded,
	metav1.StatusReasonStoreReadError:        core.ErrorCodeInternal,
	metav1.StatusReasonTimeout:               core.ErrorCodeDeadlineExceeded,
	metav1.StatusReasonTooManyRequests:       core.ErrorCodeResourceExhausted,
	metav1.StatusReasonBadRequest:            core.ErrorCodeInvalidArgument,
	metav1.StatusReasonMethodNotAllowed:      core.ErrorCodeUnimplemented,
	metav1.StatusReasonNotAcceptable:         core.ErrorCodeInvalidArgument,
	metav1.StatusReasonRequestEntityTooLarge: core.ErrorCodeResourceExhausted,
	metav1.StatusReasonUnsupportedMediaType:  core.ErrorCodeInvalidArgument,
	metav1.StatusReasonInternalError:         core.ErrorCodeInternal,
	metav1.StatusReasonExpired:               core.ErrorCodeGone,
	metav1.StatusReasonServiceUnavailable:    core.ErrorCodeUnavailable,
}

// client-go's stream watcher reports an undecodable frame as a generic
// 500 whose causes carry the decoder message under this reason.
const (
	streamDecodeReason  metav1.CauseType = "ClientWatchDecoding"
	streamDecodeFailure                  = "unable to decode an event from the watch stream"
)

// wrapK8sError converts a Kubernetes API error into a core.DomainError
// with the appropriate error code. Non-K8s errors are returned as-is;
// callers should only pass errors originating from K8s API calls.
func wrapK8sError(err error) error {
	if err == nil {
		return nil
	}

	var apiStatus apierrors.APIStatus
	if !errors.As(err, &apiStatus) {
		return err
	}

	status := apiStatus.Status()
	if isStreamDecodeFailure(status) {
		return &core.DecodeError{Reason: "malformed watch frame", Cause: err}
	}

	code, ok := statusReasonToDomainCode[status.Reason]
	if !ok {
		code = codeFromHTTPStatus(status.Code)
	}

	return &core.DomainError{
		Code:    code,
		Message: status.Message,
		Cause:   err,
	}
}

func isStreamDecodeFailure(status metav1.Status) bool {
	if status.Details == nil {
		return false
	}
	for _, cause := range status.Details.Causes {
		switch cause.Type {
		case streamDecodeReason:
			return true
		case metav1.CauseTypeUnexpectedServerResponse:
			if strings.HasPrefix(cause.Message, streamDecodeFailure) {
				return true
			}
		}
	}
	return false
}

// codeFromHTTPStatus covers statuses that carry no reason, such as the
// bare 410 some servers send for an expired resourceVersion.
func codeFromHTTPStatus(code int32) core.ErrorCode {
	switch code {
	case 404:
		return core.ErrorCodeNotFound
	case 409:
		return core.ErrorCodeAlreadyExists
	case 410:
		return core.ErrorCodeGone
	case 429:
		return core.ErrorCodeResourceExhausted
	case 503:
		return core.ErrorCodeUnavailable
	case 504:
		return core.ErrorCodeDeadlineExceeded
	default:
		return core.ErrorCodeInternal
	}
}
