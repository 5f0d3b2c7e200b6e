package preset

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	lua "github.com/yuin/gopher-lua"

	"github.com/ivlev/compositor/internal/tree"
)

// Preset is a user-authored transform: a Lua chunk defining
// transform(input), plus the merge kind of its output. Transforms must be
// pure and synchronous; they run in an interpreter with no io/os access.
type Preset struct {
	ID     string
	Kind   Kind
	Source string
}

// Run executes the transform against the current composition and returns
// the resulting patch. Any failure — a Lua error, a non-table return, a
// shape inconsistent with the declared kind — comes back as
// *MalformedError so the caller can skip the preset.
func (p *Preset) Run(root *tree.Root) (*Patch, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	// Only the pure libraries. No io, no os: transforms compute a value
	// and nothing else.
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return nil, &MalformedError{PresetID: p.ID, Err: err}
		}
	}

	// OpenBase also registers dofile/loadfile, которые читают с диска.
	// Убираем их: трансформация не должна видеть файловую систему.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)

	if err := L.DoString(p.Source); err != nil {
		return nil, &MalformedError{PresetID: p.ID, Err: err}
	}

	fn := L.GetGlobal("transform")
	if fn.Type() != lua.LTFunction {
		return nil, &MalformedError{PresetID: p.ID, Err: fmt.Errorf("transform не определён")}
	}

	input, err := rootToLua(L, root)
	if err != nil {
		return nil, &MalformedError{PresetID: p.ID, Err: err}
	}

	// Exactly one argument, one return value.
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, input); err != nil {
		return nil, &MalformedError{PresetID: p.ID, Err: err}
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, &MalformedError{PresetID: p.ID, Err: fmt.Errorf("transform вернул %s вместо таблицы", ret.Type())}
	}

	raw, ok := fromLua(tbl).(map[string]any)
	if !ok {
		return nil, &MalformedError{PresetID: p.ID, Err: fmt.Errorf("transform вернул список вместо объекта")}
	}

	patch, err := DecodePatch(p.Kind, raw)
	if err != nil {
		return nil, &MalformedError{PresetID: p.ID, Err: err}
	}

	return patch, nil
}

// DecodePatch builds a typed patch from a loosely-shaped transform output
// and validates it against the declared kind.
func DecodePatch(kind Kind, raw map[string]any) (*Patch, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("неизвестный тип пресета %q", kind)
	}

	// A bare node under childrenData becomes a one-element list.
	if m, ok := raw["childrenData"].(map[string]any); ok {
		raw["childrenData"] = []any{m}
	}

	var out Output
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       fitRefHook,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("выход пресета не соответствует схеме: %w", err)
	}

	if err := checkShape(kind, &out); err != nil {
		return nil, err
	}

	return &Patch{Kind: kind, TargetID: out.ID, Output: out}, nil
}

func checkShape(kind Kind, out *Output) error {
	switch kind {
	case Full:
		if len(out.Children) == 0 {
			return fmt.Errorf("full-пресет без childrenData")
		}
	case Children:
		if len(out.Children) == 0 && len(out.Data) == 0 {
			return fmt.Errorf("children-пресет без childrenData и data")
		}
	case Data:
		if out.Data == nil {
			return fmt.Errorf("data-пресет без data")
		}
	case Context:
		if out.Context == nil {
			return fmt.Errorf("context-пресет без context")
		}
	case Effects:
		if out.Effects == nil {
			return fmt.Errorf("effects-пресет без effects")
		}
	}
	return nil
}

// fitRefHook lets a transform write fitDurationTo as a plain string.
func fitRefHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to == reflect.TypeOf(tree.FitRef(nil)) && from.Kind() == reflect.String {
		return tree.FitRef{data.(string)}, nil
	}
	return data, nil
}

// rootToLua renders the composition as a plain Lua table. The JSON round
// trip collapses the typed tree into maps and slices first.
func rootToLua(L *lua.LState, root *tree.Root) (lua.LValue, error) {
	if root == nil {
		root = &tree.Root{}
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return toLua(L, plain), nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case []any:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range t {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	}
	return lua.LNil
}

// fromLua converts a Lua value back to plain Go data. Tables with only
// consecutive integer keys become slices, everything else a map.
func fromLua(v lua.LValue) any {
	switch t := v.(type) {
	case *lua.LTable:
		maxN := t.MaxN()
		if maxN > 0 {
			isArray := true
			t.ForEach(func(k, _ lua.LValue) {
				if _, ok := k.(lua.LNumber); !ok {
					isArray = false
				}
			})
			if isArray {
				out := make([]any, 0, maxN)
				for i := 1; i <= maxN; i++ {
					out = append(out, fromLua(t.RawGetInt(i)))
				}
				return out
			}
		}
		out := map[string]any{}
		t.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case lua.LBool:
		return bool(t)
	default:
		return nil
	}
}
