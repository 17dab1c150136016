package wire

import "errors"

// Validator accumulates size/field errors encountered while validating a
// frame so a caller can run every check and inspect the combined result at
// the end, instead of bailing out on the first error.
type Validator struct {
	accum      []error
	allowMulti bool
}

// AddError records an error. Only the first error is kept unless AllowMulti
// has been called.
func (v *Validator) AddError(err error) {
	if len(v.accum) != 0 && !v.allowMulti {
		return
	}
	v.accum = append(v.accum, err)
}

// AllowMulti switches the validator to accumulate every error instead of
// just the first.
func (v *Validator) AllowMulti() { v.allowMulti = true }

// HasError reports whether any error has been recorded.
func (v *Validator) HasError() bool { return len(v.accum) > 0 }

// Err returns the combined validation error, or nil if none were recorded.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// ErrPop returns the first recorded error and clears all recorded errors.
func (v *Validator) ErrPop() error {
	if len(v.accum) == 0 {
		return nil
	}
	err := v.accum[0]
	v.accum = v.accum[:0]
	return err
}

// Reset clears all recorded errors for reuse.
func (v *Validator) Reset() { v.accum = v.accum[:0] }
