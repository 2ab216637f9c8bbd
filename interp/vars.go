// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"flintsh/expand"
	"flintsh/syntax"
)

// overlayEnviron layers writable local variables over a parent
// [expand.WriteEnviron]. Shell functions push one with funcScope set so
// that "local" declarations and plain assignments inside the function
// body don't leak into the caller's scope; subshells push one so that
// writes during the forked execution never reach the parent.
type overlayEnviron struct {
	parent    expand.WriteEnviron
	funcScope bool
	values    map[string]expand.Variable
}

// newOverlayEnviron layers a fresh scope over parent. background is true
// when the new scope belongs to a forked subshell, in which case writes
// never need to be visible to parent once the subshell exits.
func newOverlayEnviron(parent expand.WriteEnviron, background bool) expand.WriteEnviron {
	return &overlayEnviron{parent: parent}
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent != nil {
		return o.parent.Get(name)
	}
	return expand.Variable{}
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	if name == "" {
		return fmt.Errorf("cannot set variable with empty name")
	}
	if cur := o.Get(name); cur.ReadOnly {
		return fmt.Errorf("%s: readonly variable", name)
	} else if vr.Kind == expand.KeepValue {
		cur.Local, cur.Exported, cur.ReadOnly = vr.Local || cur.Local, vr.Exported || cur.Exported, vr.ReadOnly || cur.ReadOnly
		vr = cur
	}
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	o.values[name] = vr
	return nil
}

func (o *overlayEnviron) Delete(name string) {
	delete(o.values, name)
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	seen := make(map[string]bool, len(o.values))
	for name, vr := range o.values {
		seen[name] = true
		if !fn(name, vr) {
			return
		}
	}
	if o.parent == nil {
		return
	}
	o.parent.Each(func(name string, vr expand.Variable) bool {
		if seen[name] {
			return true
		}
		return fn(name, vr)
	})
}

func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("variable name must not be empty")
	}
	var vr expand.Variable
	switch name {
	case "#":
		vr = expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(len(r.Params))}
	case "@", "*":
		vr = expand.Variable{Set: true, Kind: expand.Indexed, List: r.Params}
	case "?":
		vr = expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(int(r.exit.code))}
	case "$":
		vr = expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getpid())}
	case "PPID":
		vr = expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getppid())}
	case "LINENO":
		vr = expand.Variable{Set: true, Kind: expand.String, Str: strconv.FormatUint(uint64(r.lastPos.Line()), 10)}
	case "DIRSTACK":
		vr = expand.Variable{Set: true, Kind: expand.Indexed, List: r.dirStack}
	case "0":
		name := r.filename
		if name == "" {
			name = "flint"
		}
		vr = expand.Variable{Set: true, Kind: expand.String, Str: name}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		val := ""
		if i < len(r.Params) {
			val = r.Params[i]
		}
		vr = expand.Variable{Set: true, Kind: expand.String, Str: val}
	default:
		vr = r.writeEnv.Get(name)
		if !vr.IsSet() && runtime.GOOS == "windows" {
			vr = r.writeEnv.Get(strings.ToUpper(name))
		}
	}
	if !vr.IsSet() && r.opts[optNoUnset] {
		r.errf("%s: unbound variable\n", name)
		r.exit.code = 1
	}
	return vr
}

func (r *Runner) envGet(name string) string {
	return r.lookupVar(name).String()
}

func (r *Runner) delVar(name string) {
	vr := r.lookupVar(name)
	if vr.ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	r.writeEnv.Delete(name)
}

func (r *Runner) setVarString(name, value string) {
	r.setVar(name, expand.Variable{Set: true, Kind: expand.String, Str: value})
}

func (r *Runner) setVar(name string, vr expand.Variable) {
	if r.opts[optAllExport] && vr.Kind == expand.String {
		vr.Exported = true
	}
	if err := r.writeEnv.Set(name, vr); err != nil {
		r.errf("%s: %v\n", name, err)
		r.exit.code = 1
		return
	}
}

// setVarWithIndex assigns vr to name, honouring an optional array index
// taken from an assignment such as "name[index]=value".
func (r *Runner) setVarWithIndex(prev expand.Variable, name string, index syntax.ArithmExpr, vr expand.Variable) {
	if index == nil {
		r.setVar(name, vr)
		return
	}
	// from the syntax package, we know that vr must be a string if index
	// is non-nil; nested arrays are forbidden.
	valStr := vr.Str

	if prev.Kind == expand.Associative {
		w, ok := index.(*syntax.Word)
		if !ok {
			return
		}
		k := r.literal(w)
		amap := prev.Map
		if amap == nil {
			amap = make(map[string]string, 1)
		}
		amap[k] = valStr
		prev.Set, prev.Kind, prev.Map = true, expand.Associative, amap
		r.setVar(name, prev)
		return
	}
	var list []string
	switch prev.Kind {
	case expand.String:
		list = append(list, prev.Str)
	case expand.Indexed:
		list = prev.List
	}
	k := r.arithm(index)
	for len(list) < k+1 {
		list = append(list, "")
	}
	list[k] = valStr
	prev.Set, prev.Kind, prev.List = true, expand.Indexed, list
	r.setVar(name, prev)
}

func (r *Runner) setFunc(name string, body *syntax.Stmt) {
	if r.Funcs == nil {
		r.Funcs = make(map[string]*syntax.Stmt, 4)
	}
	r.Funcs[name] = body
}

func stringIndex(index syntax.ArithmExpr) bool {
	w, ok := index.(*syntax.Word)
	if !ok || len(w.Parts) != 1 {
		return false
	}
	switch w.Parts[0].(type) {
	case *syntax.DblQuoted, *syntax.SglQuoted:
		return true
	}
	return false
}

// assignVal evaluates the right-hand side of an assignment, given the
// variable's previous value (for append assignments) and an optional
// forced array type ("-a" indexed, "-A" associative).
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign, valType string) expand.Variable {
	if as.Naked {
		return prev
	}
	if as.Value != nil {
		s := r.literal(as.Value)
		if !as.Append || !prev.IsSet() {
			return expand.Variable{Set: true, Kind: expand.String, Str: s}
		}
		switch prev.Kind {
		case expand.Indexed:
			list := prev.List
			if len(list) == 0 {
				list = append(list, "")
			}
			list[0] += s
			return expand.Variable{Set: true, Kind: expand.Indexed, List: list}
		default:
			return expand.Variable{Set: true, Kind: expand.String, Str: prev.Str + s}
		}
	}
	if as.Array == nil {
		// don't return an unset variable; a naked "foo=" sets it empty.
		return expand.Variable{Set: true, Kind: expand.String, Str: ""}
	}
	elems := as.Array.Elems
	if valType == "" {
		if len(elems) == 0 || !stringIndex(elems[0].Index) {
			valType = "-a"
		} else {
			valType = "-A"
		}
	}
	if valType == "-A" {
		amap := make(map[string]string, len(elems))
		for _, elem := range elems {
			k := r.literal(elem.Index.(*syntax.Word))
			amap[k] = r.literal(elem.Value)
		}
		return expand.Variable{Set: true, Kind: expand.Associative, Map: amap}
	}
	maxIndex := len(elems) - 1
	indexes := make([]int, len(elems))
	for i, elem := range elems {
		if elem.Index == nil {
			indexes[i] = i
			continue
		}
		k := r.arithm(elem.Index)
		indexes[i] = k
		if k > maxIndex {
			maxIndex = k
		}
	}
	strs := make([]string, maxIndex+1)
	for i, elem := range elems {
		strs[indexes[i]] = r.literal(elem.Value)
	}
	if as.Append && prev.IsSet() {
		switch prev.Kind {
		case expand.String:
			strs = append([]string{prev.Str}, strs...)
		case expand.Indexed:
			strs = append(append([]string{}, prev.List...), strs...)
		}
	}
	return expand.Variable{Set: true, Kind: expand.Indexed, List: strs}
}

func (r *Runner) namesByPrefix(prefix string) []string {
	var names []string
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}
