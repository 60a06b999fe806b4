//go:build unix

package eventloop

import "reflect"

// callbackID returns the code pointer of cb, used as half of a timer's
// (callback, context) identity. Two closures created from the same
// function literal share a code pointer; the "callback" half of the
// identity names which kind of timer this is (group expiry, v1-host,
// general-query, other-querier-present), and ctx names which instance it
// is for.
func callbackID(cb TimerCallback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}
