package wire

import (
	"fmt"
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
)

// DecodeArgs decodes a camelCase argument map into the struct out points
// to. Every tagged field must be present and non-nil.
func DecodeArgs(method string, args readerbridge.Value, out any) error {
	m, ok := args.(map[string]readerbridge.Value)
	if !ok {
		return errors.New(errors.PhaseDecode, errors.KindInvalidArgs).
			Method(method).
			Value(args).
			Detail("expected argument map, got %T", args).
			Build()
	}

	if err := checkNullFields(method, m, out); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		ErrorUnset: true,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.DecodeHookFuncType(integralFloatHook),
	})
	if err != nil {
		return errors.InvalidArgs(method, err)
	}
	if err := dec.Decode(m); err != nil {
		return errors.InvalidArgs(method, err)
	}
	return nil
}

// DecodeInt decodes a bare integer argument. Integral floats are accepted
// because some transports carry every number as a double.
func DecodeInt(method string, args readerbridge.Value) (int64, error) {
	switch v := args.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			break
		}
		return int64(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
	}
	return 0, errors.New(errors.PhaseDecode, errors.KindInvalidArgs).
		Method(method).
		Value(args).
		Detail("expected integer, got %T(%v)", args, args).
		Build()
}

// checkNullFields rejects explicit nil values for fields that cannot hold
// nil. mapstructure treats them as set and leaves the zero value.
func checkNullFields(method string, args map[string]readerbridge.Value, out any) error {
	t := reflect.TypeOf(out)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	for i := range t.NumField() {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		v, ok := args[name]
		if !ok || v != nil {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			continue
		}
		return errors.FieldMissing(method, name)
	}
	return nil
}

// integralFloatHook rejects fractional floats and out of range unsigned
// values headed for integer fields instead of letting them truncate or wrap.
func integralFloatHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int64 {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", f)
		}
		if math.Abs(f) >= 1<<63 {
			return nil, fmt.Errorf("integer %v out of range", f)
		}
		return int64(f), nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		u := reflect.ValueOf(data).Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", u)
		}
		return int64(u), nil
	}
	return data, nil
}
