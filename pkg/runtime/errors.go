package runtime

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code identifies one of the error kinds of spec.md §7.
type Code int

const (
	ConfigInvalid Code = iota
	RuntimeUnavailable
	InventoryError
	BuilderError
	TagError
	Interrupt
)

func (c Code) String() string {
	switch c {
	case ConfigInvalid:
		return "ConfigInvalid"
	case RuntimeUnavailable:
		return "RuntimeUnavailable"
	case InventoryError:
		return "InventoryError"
	case BuilderError:
		return "BuilderError"
	case TagError:
		return "TagError"
	case Interrupt:
		return "Interrupt"
	default:
		return "Unknown"
	}
}

// ComplexError is an error carrying a typed code so that calling code can
// branch on kind without string matching, adapted from
// pkg/commands/errors.go's xerrors-Frame pattern.
type ComplexError struct {
	Message string
	Code    Code
	frame   xerrors.Frame
}

func NewError(code Code, format string, args ...interface{}) error {
	return ComplexError{
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		frame:   xerrors.Caller(1),
	}
}

func (ce ComplexError) FormatError(p xerrors.Printer) error {
	p.Printf("%s: %s", ce.Code, ce.Message)
	ce.frame.Format(p)
	return nil
}

func (ce ComplexError) Format(f fmt.State, c rune) {
	xerrors.FormatError(ce, f, c)
}

func (ce ComplexError) Error() string {
	return fmt.Sprint(ce)
}

// HasCode reports whether err is a ComplexError of the given code.
func HasCode(err error, code Code) bool {
	var ce ComplexError
	if xerrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// WrapError wraps an error for the sake of a stack trace at the top level,
// exactly as pkg/commands/errors.go does -- go-errors.Wrap, for some
// reason, does not return nil on a nil input, so we guard here.
func WrapError(err error) error {
	if err == nil {
		return err
	}
	return goerrors.Wrap(err, 0)
}
