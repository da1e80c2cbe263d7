package eval

import "strings"

// Render substitutes every {{ expr }} placeholder in tmpl with the
// string rendering of expr evaluated against ctx. Literal text outside
// placeholders passes through unchanged. This is the template surface
// spec §4.3 describes for Tool.path/headers/request_body/response_body:
// `{{config.url}}`, `{{args.X}}`, `{{request.headers.Y}}`.
func Render(tmpl string, ctx Context) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		start += i
		b.WriteString(tmpl[i:start])
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			// Unterminated placeholder: emit the rest verbatim.
			b.WriteString(tmpl[start:])
			break
		}
		end += start
		expr := strings.TrimSpace(tmpl[start+2 : end])
		val, err := EvalString(expr, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		i = end + 2
	}
	return b.String(), nil
}
