package lua

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a Go value to a Lua value.
// Structs, maps and slices become tables; unsupported kinds become nil.
func ToLua(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	if lv, ok := v.(lua.LValue); ok {
		return lv
	}
	return reflectToLua(L, reflect.ValueOf(v), 0)
}

// maxConvertDepth stops runaway conversion of self-referencing values.
const maxConvertDepth = 16

func reflectToLua(L *lua.LState, rv reflect.Value, depth int) lua.LValue {
	if depth > maxConvertDepth || !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return reflectToLua(L, rv.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return lua.LNil
		}
		t := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, reflectToLua(L, rv.Index(i), depth+1))
		}
		return t
	case reflect.Map:
		if rv.IsNil() {
			return lua.LNil
		}
		t := L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(reflectToLua(L, iter.Key(), depth+1), reflectToLua(L, iter.Value(), depth+1))
		}
		return t
	case reflect.Struct:
		t := L.NewTable()
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() || f.Anonymous {
				continue
			}
			t.RawSetString(f.Name, reflectToLua(L, rv.Field(i), depth+1))
		}
		return t
	default:
		return lua.LNil
	}
}

// FromLua converts a Lua value to a Go value.
// Tables with keys 1..n become []any, other tables map[string]any.
// Whole numbers become int64.
func FromLua(lv lua.LValue) any {
	return fromLua(lv, 0)
}

func fromLua(lv lua.LValue, depth int) any {
	if depth > maxConvertDepth {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := v.Len(); n > 0 && countKeys(v) == n {
			out := make([]any, n)
			for i := 1; i <= n; i++ {
				out[i-1] = fromLua(v.RawGetInt(i), depth+1)
			}
			return out
		}
		out := make(map[string]any)
		v.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val, depth+1)
		})
		return out
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}

// assign stores a Lua value into a settable Go value, converting numbers,
// strings and booleans to the destination kind.
func assign(dst reflect.Value, lv lua.LValue) error {
	if lv == lua.LNil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		b, ok := lv.(lua.LBool)
		if !ok {
			return fmt.Errorf("expected boolean, got %s", lv.Type())
		}
		dst.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return fmt.Errorf("expected number, got %s", lv.Type())
		}
		if dst.OverflowInt(int64(n)) {
			return fmt.Errorf("%v overflows %s", n, dst.Type())
		}
		dst.SetInt(int64(n))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := lv.(lua.LNumber)
		if !ok || n < 0 {
			return fmt.Errorf("expected non-negative number, got %s", lv.String())
		}
		if dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%v overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return fmt.Errorf("expected number, got %s", lv.Type())
		}
		dst.SetFloat(float64(n))
	case reflect.String:
		s, ok := lv.(lua.LString)
		if !ok {
			return fmt.Errorf("expected string, got %s", lv.Type())
		}
		dst.SetString(string(s))
	default:
		v := reflect.ValueOf(FromLua(lv))
		if !v.IsValid() || !v.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("cannot assign %s to %s", lv.Type(), dst.Type())
		}
		dst.Set(v)
	}
	return nil
}
