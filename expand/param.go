// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"flintsh/syntax"
)

func litWord(w syntax.Word) string {
	if len(w.Parts) != 1 {
		return ""
	}
	lit, ok := w.Parts[0].(*syntax.Lit)
	if !ok {
		return ""
	}
	return lit.Value
}

type UnsetParameterError struct {
	Expr    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string { return u.Message }

func (cfg *Config) paramExp(pe *syntax.ParamExp) (string, error) {
	name := pe.Param.Value

	var vr Variable
	switch name {
	case "LINENO":
		// This is the only parameter expansion that the environment
		// interface cannot satisfy.
		line := uint64(pe.Pos().Line())
		vr.Set, vr.Kind = true, String
		vr.Str = strconv.FormatUint(line, 10)
	default:
		vr = cfg.Env.Get(name)
	}
	set := vr.IsSet()

	str, err := cfg.varStr(vr, 0)
	if err != nil {
		return "", err
	}

	all := name == "@" || name == "*"
	var elems []string
	switch vr.Kind {
	case Indexed:
		elems = vr.List
	case Associative:
		keys := make([]string, 0, len(vr.Map))
		for k := range vr.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			elems = append(elems, vr.Map[k])
		}
	default:
		elems = []string{str}
	}

	switch {
	case pe.Length:
		n := len(elems)
		if !all {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Ind != nil:
		str, err = cfg.varInd(vr, &pe.Ind.Word, 0)
		if err != nil {
			return "", err
		}
	case pe.Slice != nil:
		if pe.Slice.Offset.Parts != nil {
			offset, err := Arithm(cfg, &pe.Slice.Offset)
			if err != nil {
				return "", err
			}
			str = slicePos(str, offset)
		}
		if pe.Slice.Length.Parts != nil {
			length, err := Arithm(cfg, &pe.Slice.Length)
			if err != nil {
				return "", err
			}
			if length < 0 {
				length = len(str) + length
			}
			if length < len(str) {
				str = str[:length]
			}
		}
	case pe.Repl != nil:
		orig, err := Pattern(cfg, &pe.Repl.Orig)
		if err != nil {
			return "", err
		}
		with, err := Literal(cfg, &pe.Repl.With)
		if err != nil {
			return "", err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		var buf strings.Builder
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		arg, err := Literal(cfg, &pe.Exp.Word)
		if err != nil {
			return "", err
		}
		switch op := pe.Exp.Op; op {
		case syntax.AlternateUnsetOrNull:
			if str == "" {
				break
			}
			fallthrough
		case syntax.AlternateUnset:
			if set {
				str = arg
			}
		case syntax.DefaultUnset:
			if set {
				break
			}
			fallthrough
		case syntax.DefaultUnsetOrNull:
			if str == "" {
				str = arg
			}
		case syntax.ErrorUnset:
			if set {
				break
			}
			fallthrough
		case syntax.ErrorUnsetOrNull:
			if str == "" {
				return "", UnsetParameterError{Expr: pe, Message: arg}
			}
		case syntax.AssignUnset:
			if set {
				break
			}
			fallthrough
		case syntax.AssignUnsetOrNull:
			if str == "" {
				if err := cfg.envSet(name, arg); err != nil {
					return "", err
				}
				str = arg
			}
		case syntax.RemSmallPrefix, syntax.RemLargePrefix,
			syntax.RemSmallSuffix, syntax.RemLargeSuffix:
			suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
			large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		case syntax.UpperFirst, syntax.UpperAll,
			syntax.LowerFirst, syntax.LowerAll:
			caseFunc := unicode.ToLower
			if op == syntax.UpperFirst || op == syntax.UpperAll {
				caseFunc = unicode.ToUpper
			}
			allRunes := op == syntax.UpperAll || op == syntax.LowerAll

			// empty string means '?'; nothing to do there
			expr, err := syntax.TranslatePattern(arg, false)
			if err != nil {
				return str, nil
			}
			rx := regexp.MustCompile(expr)

			for i, elem := range elems {
				rs := []rune(elem)
				for ri, r := range rs {
					if rx.MatchString(string(r)) {
						rs[ri] = caseFunc(r)
						if !allRunes {
							break
						}
					}
				}
				elems[i] = string(rs)
			}
			str = strings.Join(elems, " ")
		case syntax.OtherParamOps:
			switch arg {
			case "Q":
				str = strconv.Quote(str)
			case "E":
				tail := str
				var rns []rune
				for tail != "" {
					var rn rune
					rn, _, tail, _ = strconv.UnquoteChar(tail, 0)
					rns = append(rns, rn)
				}
				str = string(rns)
			case "P", "A", "a":
				return "", fmt.Errorf("unhandled @%s param expansion", arg)
			default:
				return "", fmt.Errorf("unexpected @%s param expansion", arg)
			}
		}
	}
	return str, nil
}

func slicePos(str string, p int) string {
	if p < 0 {
		p = len(str) + p
		if p < 0 {
			p = 0
		}
	} else if p > len(str) {
		p = len(str)
	}
	return str[p:]
}

func removePattern(str, pattern string, fromEnd, greedy bool) string {
	expr, err := syntax.TranslatePattern(pattern, greedy)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		// use .* to get the right-most (shortest) match
		expr = ".*(" + expr + ")$"
	case fromEnd:
		// simple suffix
		expr = "(" + expr + ")$"
	default:
		// simple prefix
		expr = "^(" + expr + ")"
	}
	// no need to check error as TranslatePattern returns one
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		// remove the original pattern (the submatch)
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

func (cfg *Config) varStr(vr Variable, depth int) (string, error) {
	if depth > maxNameRefDepth {
		return "", nil
	}
	if vr.Kind == NameRef {
		vr = cfg.Env.Get(vr.Str)
		return cfg.varStr(vr, depth+1)
	}
	return vr.String(), nil
}

func (cfg *Config) varInd(vr Variable, idx *syntax.Word, depth int) (string, error) {
	if depth > maxNameRefDepth {
		return "", nil
	}
	switch vr.Kind {
	case NameRef:
		vr = cfg.Env.Get(vr.Str)
		return cfg.varInd(vr, idx, depth+1)
	case Indexed:
		lit := litWord(*idx)
		if lit == "@" {
			return strings.Join(vr.List, " "), nil
		}
		if lit == "*" {
			return cfg.ifsJoin(vr.List), nil
		}
		i, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if i >= 0 && i < len(vr.List) {
			return vr.List[i], nil
		}
		return "", nil
	case Associative:
		lit := litWord(*idx)
		if lit == "@" || lit == "*" {
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = vr.Map[k]
			}
			if lit == "*" {
				return cfg.ifsJoin(strs), nil
			}
			return strings.Join(strs, " "), nil
		}
		key, err := Literal(cfg, idx)
		if err != nil {
			return "", err
		}
		return vr.Map[key], nil
	default:
		i, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if i == 0 {
			return vr.Str, nil
		}
		return "", nil
	}
}

func (cfg *Config) ifsJoin(list []string) string {
	ifs := " "
	if v := cfg.Env.Get("IFS"); v.IsSet() {
		ifs = v.Str
	}
	sep := ""
	if ifs != "" {
		sep = ifs[:1]
	}
	return strings.Join(list, sep)
}
