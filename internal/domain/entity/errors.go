package entity

import "errors"

// Authorization errors
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAnApprover    = errors.New("not an approver for the current stage")
)

// Validation errors
var (
	ErrInvalidPermissionType     = errors.New("invalid permission type")
	ErrUserNotFound              = errors.New("user not found")
	ErrUserInactive              = errors.New("user is inactive")
	ErrCommentRequired           = errors.New("comment is required")
	ErrInvalidWorkflowDefinition = errors.New("invalid workflow definition")
)

// State conflict errors
var (
	ErrAlreadyDecided            = errors.New("approval instance already decided")
	ErrDuplicateDecision         = errors.New("approver already decided at this stage")
	ErrDocumentAlreadyInWorkflow = errors.New("document already has a pending approval")
	ErrConcurrentModification    = errors.New("approval instance modified concurrently")
	ErrDuplicateWorkflowName     = errors.New("workflow name already exists")
)

// Not found errors
var (
	ErrInstanceNotFound = errors.New("approval instance not found")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// ErrStorage hides persistence failures from engine callers
var ErrStorage = errors.New("storage error")

// Kind classifies an error for callers that render or map it
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindConflict
	KindNotFound
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrPermissionDenied, KindAuthorization},
	{ErrNotAnApprover, KindAuthorization},
	{ErrInvalidPermissionType, KindValidation},
	{ErrUserNotFound, KindValidation},
	{ErrUserInactive, KindValidation},
	{ErrCommentRequired, KindValidation},
	{ErrInvalidWorkflowDefinition, KindValidation},
	{ErrAlreadyDecided, KindConflict},
	{ErrDuplicateDecision, KindConflict},
	{ErrDocumentAlreadyInWorkflow, KindConflict},
	{ErrConcurrentModification, KindConflict},
	{ErrDuplicateWorkflowName, KindConflict},
	{ErrInstanceNotFound, KindNotFound},
	{ErrWorkflowNotFound, KindNotFound},
	{ErrDocumentNotFound, KindNotFound},
	{ErrStorage, KindStorage},
}

// KindOf returns the kind of the first known sentinel wrapped by err
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
