package eval

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Context is the root binding set an expression is evaluated against:
// {args, config, request: {headers, query, cookies, path, body},
// response}, per spec §4.3.
type Context map[string]any

// Eval parses and evaluates a single expression against ctx.
func Eval(src string, ctx Context) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return evalNode(node, ctx)
}

// EvalString evaluates src and renders the result as a string, the
// form every template placeholder in path/header/body rendering uses.
func EvalString(src string, ctx Context) (string, error) {
	v, err := Eval(src, ctx)
	if err != nil {
		return "", err
	}
	return toStr(v), nil
}

func evalNode(n Node, ctx Context) (any, error) {
	switch t := n.(type) {
	case numberLit:
		return t.v, nil
	case stringLit:
		return t.v, nil
	case boolLit:
		return t.v, nil
	case nullLit:
		return nil, nil
	case identifier:
		if v, ok := ctx[t.name]; ok {
			return v, nil
		}
		return nil, nil
	case member:
		target, err := evalNode(t.target, ctx)
		if err != nil {
			return nil, err
		}
		return fieldOf(target, t.field), nil
	case index:
		target, err := evalNode(t.target, ctx)
		if err != nil {
			return nil, err
		}
		idx, err := evalNode(t.idx, ctx)
		if err != nil {
			return nil, err
		}
		return indexOf(target, idx), nil
	case unary:
		operand, err := evalNode(t.operand, ctx)
		if err != nil {
			return nil, err
		}
		if t.op == tokNot {
			return !truthy(operand), nil
		}
		return nil, fmt.Errorf("eval: unsupported unary op")
	case binary:
		return evalBinary(t, ctx)
	case ternary:
		cond, err := evalNode(t.cond, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalNode(t.then, ctx)
		}
		return evalNode(t.els, ctx)
	case call:
		args := make([]any, len(t.args))
		for i, a := range t.args {
			v, err := evalNode(a, ctx)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callBuiltin(t.fn, args)
	default:
		return nil, fmt.Errorf("eval: unknown node %T", n)
	}
}

func evalBinary(b binary, ctx Context) (any, error) {
	left, err := evalNode(b.left, ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case tokAnd:
		if !truthy(left) {
			return false, nil
		}
		right, err := evalNode(b.right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case tokOr:
		if truthy(left) {
			return true, nil
		}
		right, err := evalNode(b.right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}
	right, err := evalNode(b.right, ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case tokPlus:
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if lok && rok {
			return lf + rf, nil
		}
		return toStr(left) + toStr(right), nil
	case tokEq:
		return fmt.Sprint(left) == fmt.Sprint(right), nil
	case tokNotEq:
		return fmt.Sprint(left) != fmt.Sprint(right), nil
	case tokLt, tokLte, tokGt, tokGte:
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return false, nil
		}
		switch b.op {
		case tokLt:
			return lf < rf, nil
		case tokLte:
			return lf <= rf, nil
		case tokGt:
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}
	return nil, fmt.Errorf("eval: unsupported binary op")
}

func fieldOf(v any, field string) any {
	switch m := v.(type) {
	case map[string]any:
		return m[field]
	case Context:
		return m[field]
	}
	return nil
}

func indexOf(v, idx any) any {
	switch arr := v.(type) {
	case []any:
		i, ok := asNumber(idx)
		if !ok || int(i) < 0 || int(i) >= len(arr) {
			return nil
		}
		return arr[int(i)]
	case map[string]any:
		return arr[toStr(idx)]
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toStr(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("<JSON error: %s>", err)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// callBuiltin implements the fixed function set named in spec §9:
// toString, toNumber, length, toJSON, fromJSON, join, split, replace,
// default, pick, omit, filterBy, pluck, includes.
func callBuiltin(name string, args []any) (any, error) {
	arg := func(i int) any {
		if i < len(args) {
			return args[i]
		}
		return nil
	}
	switch name {
	case "toString":
		return toStr(arg(0)), nil
	case "toNumber":
		f, _ := asNumber(arg(0))
		return f, nil
	case "length":
		switch t := arg(0).(type) {
		case string:
			return float64(len(t)), nil
		case []any:
			return float64(len(t)), nil
		case map[string]any:
			return float64(len(t)), nil
		}
		return float64(0), nil
	case "toJSON":
		b, err := json.Marshal(arg(0))
		if err != nil {
			return fmt.Sprintf("<JSON Error: %s>", err), nil
		}
		return string(b), nil
	case "fromJSON":
		s, ok := arg(0).(string)
		if !ok {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, nil
		}
		return v, nil
	case "join":
		arr, _ := arg(0).([]any)
		sep := toStr(arg(1))
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = toStr(v)
		}
		return strings.Join(parts, sep), nil
	case "split":
		s, _ := arg(0).(string)
		sep := toStr(arg(1))
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "replace":
		s, _ := arg(0).(string)
		old := toStr(arg(1))
		new := toStr(arg(2))
		return strings.ReplaceAll(s, old, new), nil
	case "default":
		v := arg(0)
		if v == nil || v == "" {
			return arg(1), nil
		}
		return v, nil
	case "pick":
		obj, _ := arg(0).(map[string]any)
		result := map[string]any{}
		for _, k := range args[1:] {
			key := toStr(k)
			if v, ok := obj[key]; ok {
				result[key] = v
			}
		}
		return result, nil
	case "omit":
		obj, _ := arg(0).(map[string]any)
		result := map[string]any{}
		omitKeys := map[string]bool{}
		for _, k := range args[1:] {
			omitKeys[toStr(k)] = true
		}
		for k, v := range obj {
			if !omitKeys[k] {
				result[k] = v
			}
		}
		return result, nil
	case "filterBy":
		arr, _ := arg(0).([]any)
		prop := toStr(arg(1))
		var filterValue any
		hasValue := len(args) > 2
		if hasValue {
			filterValue = arg(2)
		}
		var result []any
		for _, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			v, ok := obj[prop]
			if !ok {
				continue
			}
			if hasValue {
				if fmt.Sprint(v) == fmt.Sprint(filterValue) {
					result = append(result, item)
				}
			} else if truthy(v) {
				result = append(result, item)
			}
		}
		return sortedIfEmpty(result), nil
	case "pluck":
		arr, _ := arg(0).([]any)
		prop := toStr(arg(1))
		var result []any
		for _, item := range arr {
			if obj, ok := item.(map[string]any); ok {
				if v, ok := obj[prop]; ok {
					result = append(result, v)
				}
			}
		}
		return sortedIfEmpty(result), nil
	case "includes":
		arr, _ := arg(0).([]any)
		needle := fmt.Sprint(arg(1))
		for _, v := range arr {
			if fmt.Sprint(v) == needle {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("eval: unknown function %q", name)
	}
}

// sortedIfEmpty normalizes a nil result slice to an empty, non-nil
// slice so callers always get a JSON array rather than null.
func sortedIfEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
