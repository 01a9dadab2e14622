package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Hook is implemented by lifecycle action instances.
type Hook interface {
	Install(ctx context.Context, pkg string) error
	Uninstall(ctx context.Context, pkg string) error
}

// Lua entry points called by Script.
const (
	InstallFunc   = "install"
	UninstallFunc = "uninstall"
)

// Script is a compiled Lua source. Every call runs in a fresh sandboxed
// state, so a Script is safe for concurrent use.
type Script struct {
	class    string
	path     string
	proto    *lua.FunctionProto
	bindings map[string]lua.LGFunction
}

var _ Hook = (*Script)(nil)

// ScriptOption configures a Script.
type ScriptOption func(*Script)

// WithBindings exposes Go functions to the script as globals.
func WithBindings(bindings map[string]lua.LGFunction) ScriptOption {
	return func(s *Script) {
		for name, fn := range bindings {
			s.bindings[name] = fn
		}
	}
}

// LoadScript reads and compiles the Lua source at path.
func LoadScript(class, path string, opts ...ScriptOption) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return CompileScript(class, path, string(src), opts...)
}

// CompileScript compiles src. name is used in Lua error messages.
func CompileScript(class, name, src string, opts ...ScriptOption) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}
	s := &Script{
		class:    class,
		path:     name,
		proto:    proto,
		bindings: make(map[string]lua.LGFunction),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Class returns the declared class name.
func (s *Script) Class() string { return s.class }

// Path returns the source path.
func (s *Script) Path() string { return s.path }

// Install calls the script's global install(pkg), if defined.
func (s *Script) Install(ctx context.Context, pkg string) error {
	return s.call(ctx, InstallFunc, pkg)
}

// Uninstall calls the script's global uninstall(pkg), if defined.
func (s *Script) Uninstall(ctx context.Context, pkg string) error {
	return s.call(ctx, UninstallFunc, pkg)
}

// Global evaluates the script and returns the string value of a global.
func (s *Script) Global(ctx context.Context, name string) (string, error) {
	var out string
	err := s.run(ctx, func(L *lua.LState) error {
		v := L.GetGlobal(name)
		if v != lua.LNil {
			out = v.String()
		}
		return nil
	})
	return out, err
}

func (s *Script) call(ctx context.Context, fn, pkg string) error {
	return s.run(ctx, func(L *lua.LState) error {
		v := L.GetGlobal(fn)
		if v == lua.LNil {
			return nil
		}
		if v.Type() != lua.LTFunction {
			return fmt.Errorf("%s: %q is not a function (got %s)", s.path, fn, v.Type())
		}
		if err := L.CallByParam(lua.P{Fn: v, NRet: 0, Protect: true}, lua.LString(pkg)); err != nil {
			return fmt.Errorf("%s: %s(%s): %w", s.path, fn, pkg, err)
		}
		return nil
	})
}

// run loads the chunk into a new state and hands it to fn.
func (s *Script) run(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	L := newSandbox()
	defer L.Close()

	if ctx != nil {
		L.SetContext(ctx)
	}
	for name, b := range s.bindings {
		L.SetGlobal(name, L.NewFunction(b))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic in %s: %v", s.path, r)
		}
	}()

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("load %s: %w", s.path, err)
	}
	return fn(L)
}

// newSandbox opens the base, table, string and math libraries only and
// removes the loaders.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
