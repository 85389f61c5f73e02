// internal/domain/common/errors.go
package common

import "errors"

// Kind はユーザー向けエラーの分類（HTTP ステータスへのマッピングに使う）
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
)

// Kind sentinels. errors.Is(err, ErrValidation) matches every *Error of that kind.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("temporary failure")
)

// Error is a classified, user-facing error. Msg is shown to the user as-is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the kind sentinel of e.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: KindConflict, Msg: msg} }
func Transient(msg string) *Error  { return &Error{Kind: KindTransient, Msg: msg} }

// Wrap returns a copy of sentinel e that also carries cause for errors.Is/As.
// errors.Is(result, e) still holds because the copy unwraps to e.
func Wrap(e *Error, cause error) error {
	if e == nil {
		return cause
	}
	return &Error{Kind: e.Kind, Msg: e.Msg, Err: errors.Join(e, cause)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) && ce != nil {
		return ce.Kind, true
	}
	return "", false
}
