// Package jsoncodec is the single JSON surface of the kernel: envelope
// payload normalisation, state (de)serialisation for the state store, and
// the metrics snapshot encoding all go through it.
package jsoncodec

import "github.com/bytedance/sonic"

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Clone deep-copies v through a marshal/unmarshal round trip. The executor
// uses it to hand each invocation its own state value so a handler can never
// alias the cached copy.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := defaultConfig.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := defaultConfig.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
