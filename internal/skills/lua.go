// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// DefaultLuaEntry is the handler file used when a manifest names none.
const DefaultLuaEntry = "handler.lua"

// LuaSkill runs a Lua handler in a restricted interpreter. The handler must
// define a global function execute(query, ctx) that returns a value, or nil
// and an error message.
type LuaSkill struct {
	desc  Descriptor
	proto *lua.FunctionProto
	pool  sync.Pool
}

// NewLuaSkill compiles the handler named by desc.Entry inside desc.Dir.
func NewLuaSkill(desc Descriptor) (*LuaSkill, error) {
	entry := desc.Entry
	if entry == "" {
		entry = DefaultLuaEntry
	}
	if filepath.IsAbs(entry) || strings.Contains(filepath.ToSlash(entry), "..") {
		return nil, fmt.Errorf("entry %q must stay inside the skill directory", entry)
	}

	source, err := os.ReadFile(filepath.Join(desc.Dir, entry))
	if err != nil {
		return nil, fmt.Errorf("failed to read handler: %w", err)
	}
	return NewLuaSkillFromSource(desc, string(source))
}

// NewLuaSkillFromSource compiles source as the skill handler.
func NewLuaSkillFromSource(desc Descriptor, source string) (*LuaSkill, error) {
	L := newSandbox(desc.Name)
	defer L.Close()

	fn, err := L.LoadString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile handler for %s: %w", desc.Name, err)
	}

	s := &LuaSkill{desc: desc, proto: fn.Proto}
	s.pool.New = func() any {
		return newSandbox(desc.Name)
	}
	return s, nil
}

// Descriptor implements Skill.
func (s *LuaSkill) Descriptor() Descriptor { return s.desc }

// Execute implements Skill.
func (s *LuaSkill) Execute(ctx context.Context, query string, sc Context) (any, error) {
	L := s.pool.Get().(*lua.LState)
	defer func() {
		// An interpreter interrupted by cancellation is not reused.
		if ctx.Err() != nil {
			L.Close()
			return
		}
		L.RemoveContext()
		L.SetTop(0)
		s.pool.Put(L)
	}()

	L.SetContext(ctx)

	// Re-run the chunk so execute is always this skill's definition.
	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, fmt.Errorf("failed to load handler: %w", err)
	}

	fn := L.GetGlobal("execute")
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("handler for %s does not define execute(query, ctx)", s.desc.Name)
	}

	L.Push(fn)
	L.Push(lua.LString(query))
	L.Push(goMapToLuaTable(L, sc.Map()))
	if err := L.PCall(2, 2, nil); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("skill %s failed: %w", s.desc.Name, err)
	}

	result, errVal := L.Get(-2), L.Get(-1)
	L.Pop(2)

	if errVal != lua.LNil {
		return nil, fmt.Errorf("%s", errVal.String())
	}
	return luaValueToGo(result), nil
}

// newSandbox creates an interpreter with only the base, table, string and
// math libraries plus os.date and os.time.
func newSandbox(skillName string) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	osTbl := L.NewTable()
	L.SetField(osTbl, "date", L.NewFunction(func(L *lua.LState) int {
		format := L.OptString(1, "%c")
		t := time.Now()
		if L.GetTop() >= 2 {
			t = time.Unix(int64(L.CheckNumber(2)), 0)
		}
		if strings.HasPrefix(format, "!") {
			format = format[1:]
			t = t.UTC()
		}
		L.Push(lua.LString(t.Format(luaDateLayout(format))))
		return 1
	}))
	L.SetField(osTbl, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	L.SetGlobal("os", osTbl)

	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)

	nyx := L.NewTable()
	L.SetField(nyx, "log", L.NewFunction(func(L *lua.LState) int {
		level := L.CheckString(1)
		msg := L.CheckString(2)
		entry := log.WithField("skill", skillName)
		switch strings.ToLower(level) {
		case "debug":
			entry.Debug(msg)
		case "warn", "warning":
			entry.Warn(msg)
		case "error":
			entry.Error(msg)
		default:
			entry.Info(msg)
		}
		return 0
	}))
	L.SetGlobal("nyx", nyx)

	return L
}

var luaDateReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%z", "-0700",
	"%Z", "MST",
	"%A", "Monday",
	"%a", "Mon",
	"%B", "January",
	"%b", "Jan",
)

// luaDateLayout maps the strftime subset used by os.date to a Go layout.
// "%c" and formats without a known directive yield RFC 3339.
func luaDateLayout(format string) string {
	if format == "" || format == "%c" {
		return time.RFC3339
	}
	out := luaDateReplacer.Replace(format)
	if out == format {
		return time.RFC3339
	}
	return out
}

func goMapToLuaTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, goValueToLua(L, v))
	}
	return tbl
}

func goValueToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			L.RawSetInt(tbl, i+1, lua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.RawSetInt(tbl, i+1, goValueToLua(L, item))
		}
		return tbl
	case map[string]any:
		return goMapToLuaTable(L, val)
	default:
		// Round-trip anything else through JSON so structs arrive as tables.
		b, err := json.Marshal(val)
		if err != nil {
			return lua.LString(fmt.Sprintf("%v", val))
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return lua.LString(string(b))
		}
		return goValueToLua(L, generic)
	}
}

func luaTableToGoMap(tbl *lua.LTable) map[string]any {
	result := make(map[string]any)
	tbl.ForEach(func(key lua.LValue, value lua.LValue) {
		if keyStr, ok := key.(lua.LString); ok {
			result[string(keyStr)] = luaValueToGo(value)
		}
	})
	return result
}

func luaValueToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			if num, ok := k.(lua.LNumber); ok {
				if idx := int(num); idx > maxIdx {
					maxIdx = idx
				}
			} else {
				isArray = false
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				if num, ok := k.(lua.LNumber); ok {
					if idx := int(num) - 1; idx >= 0 && idx < len(arr) {
						arr[idx] = luaValueToGo(v)
					}
				}
			})
			return arr
		}
		return luaTableToGoMap(val)
	default:
		return nil
	}
}
