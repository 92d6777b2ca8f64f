package actorloop

import (
	"fmt"
	"reflect"
)

// sanitizeInbound classifies each argument crossing into the loop (spec
// §4.A): primitives, nils, and errors pass through unchanged; a raw
// function value is wrapped as an *ExternalCallable so handler code can
// call back out without losing the serialization guarantee; a
// *WrappedInternalObject owned by this loop is unwrapped back to the
// value it carries; anything else, including a *WrappedInternalObject
// owned by a different loop, passes through opaquely.
func (l *EventLoop) sanitizeInbound(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = l.sanitizeInboundValue(a)
	}
	return out, nil
}

func (l *EventLoop) sanitizeInboundValue(a any) any {
	if a == nil {
		return nil
	}
	if w, ok := a.(*WrappedInternalObject); ok && w.loop == l {
		return w.value
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Func {
		return wrapExternalCallable(l, handlerFromReflect(rv))
	}
	return a
}

// handlerFromReflect adapts an arbitrary raw func value to the Handler
// shape expected by ExternalCallable, so callers do not have to match the
// exact (args ...any) (any, error) signature when handing a function
// across the boundary.
func handlerFromReflect(rv reflect.Value) Handler {
	if h, ok := rv.Interface().(Handler); ok {
		return h
	}
	rt := rv.Type()
	return func(args ...any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			if a == nil && i < rt.NumIn() {
				in[i] = reflect.Zero(rt.In(i))
			} else {
				in[i] = reflect.ValueOf(a)
			}
		}
		out := rv.Call(in)
		return adaptReflectResults(out)
	}
}

func adaptReflectResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		var err error
		if e, ok := last.Interface().(error); ok {
			err = e
		}
		if len(out) == 2 {
			return out[0].Interface(), err
		}
		vals := make([]any, len(out)-1)
		for i := range vals {
			vals[i] = out[i].Interface()
		}
		return vals, err
	}
}

// sanitizeOutboundValue classifies a single value leaving the loop (spec
// §4.A). Primitives and errors pass through. A *WrappedInternalObject or
// *ExternalCallable is already a safe handle and passes through unchanged.
// A bare raw function is rejected with ErrInvalidBoundary: the sanitizer
// cannot know whether the author intended async, sync, or yield semantics
// for an unmarked callable returned by value, so the handler must construct
// an AsyncProc, SyncProc, or YieldProc explicitly before returning it.
func (l *EventLoop) sanitizeOutboundValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case *WrappedInternalObject, *ExternalCallable, *AsyncProc, *SyncProc, *YieldProc, *Handle:
		return v, nil
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return nil, fmt.Errorf("actorloop: bare function value cannot cross the internal/external boundary, wrap as AsyncProc, SyncProc, or YieldProc: %w", ErrInvalidBoundary)
	}
	return v, nil
}
