package httpapi

// Result response envelope shared by every JSON endpoint
// - code: ResultSuccess unless the request failed
// - type: 'success' | 'warning' | 'error'
// - warning carries a usable result plus the reason it may be out of date
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: TypeSuccess, Message: "ok", Result: result}
}

// Warn succeeds with a stale result
func Warn[T any](result T, message string) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: TypeWarning, Message: message, Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: TypeError, Message: message}
}
