// Package cmn holds types shared across every layer of the runtime:
// the closed return-code set (spec section 6), and the small closed tag
// enums (reduction ops, datatypes) used by the collectives layer.
package cmn

// RetCode is the closed set of return codes (spec section 6). It
// implements error. Public calls in this repository return Go errors,
// mostly built with fmt.Errorf, and most of them wrap no RetCode; the
// RMA handle pool's exhaustion error wraps ErrAgain and can be matched
// with errors.Is.
type RetCode int

const (
	OK RetCode = iota
	ErrInval
	ErrNotFound
	ErrNotInit
	ErrAgain
	ErrOther
)

func (r RetCode) String() string {
	switch r {
	case OK:
		return "OK"
	case ErrInval:
		return "ERR_INVAL"
	case ErrNotFound:
		return "ERR_NOTFOUND"
	case ErrNotInit:
		return "ERR_NOTINIT"
	case ErrAgain:
		return "ERR_AGAIN"
	case ErrOther:
		return "ERR_OTHER"
	default:
		return "ERR_UNKNOWN"
	}
}

func (r RetCode) Error() string { return r.String() }
