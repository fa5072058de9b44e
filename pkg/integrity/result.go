package integrity

// Kind discriminates a Result.
type Kind int

const (
	// KindSuccess carries an opaque token for the backend.
	KindSuccess Kind = iota
	// KindFailure carries a platform or validation error code.
	KindFailure
	// KindError carries an unexpected error, such as cancellation.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one token request.
type Result struct {
	Kind Kind
	// Token is set for KindSuccess. It is opaque.
	Token    string
	Code     ErrorCode
	Category Category
	Message  string
	Err      error
}

func success(token string) Result {
	return Result{Kind: KindSuccess, Token: token}
}

func failure(code ErrorCode, err error) Result {
	return Result{
		Kind:     KindFailure,
		Code:     code,
		Category: code.Category(),
		Message:  code.Message(),
		Err:      err,
	}
}

func unexpected(err error) Result {
	return Result{
		Kind:     KindError,
		Category: CategoryInternal,
		Message:  "Device integrity could not be verified",
		Err:      err,
	}
}

// OK reports whether r carries a token.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Retryable reports whether the caller may retry with backoff.
func (r Result) Retryable() bool {
	return r.Category == CategoryRetryable || r.Category == CategoryRateLimited
}
