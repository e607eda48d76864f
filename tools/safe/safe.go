package safe

import (
	"fmt"
	"reflect"
	"time"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during wiring.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// DefaultDuration returns d when positive, otherwise the fallback.
func DefaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("[SafeGo] panic recovered: %v\n", r)
			}
		}()
		f()
	}()
}
