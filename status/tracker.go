package status

// Callback receives every reported error synchronously, before the failing
// operation returns.
type Callback func(err *Error)

// Tracker holds the single last-error slot of one runtime or compiler
// instance. It is not safe for concurrent use; neither is its owner.
type Tracker struct {
	last     *Error
	callback Callback
}

// SetCallback registers cb, replacing any previous callback. nil clears it.
func (t *Tracker) SetCallback(cb Callback) {
	t.callback = cb
}

// Report records err as the last error and delivers it to the callback.
// It returns err so call sites can `return t.Report(...)`.
func (t *Tracker) Report(err *Error) *Error {
	if err == nil {
		return nil
	}
	t.last = err
	if t.callback != nil {
		t.callback(err)
	}
	return err
}

// Reportf is Report(Errorf(kind, format, args...)).
func (t *Tracker) Reportf(kind Kind, format string, args ...interface{}) *Error {
	return t.Report(Errorf(kind, format, args...))
}

// ReportErr classifies an arbitrary error (keeping an existing
// classification) and reports it.
func (t *Tracker) ReportErr(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return t.Report(e)
	}
	return t.Report(&Error{Kind: kind, Message: err.Error(), Err: err})
}

// LastError returns the most recent error and clears the slot.
func (t *Tracker) LastError() *Error {
	err := t.last
	t.last = nil
	return err
}

// Peek returns the most recent error without clearing it.
func (t *Tracker) Peek() *Error {
	return t.last
}
