package placeholder

import (
	"sort"
	"strings"
)

// Rendered is a personalized subject and body
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Render replaces every literal {{key}} in subject and body with vars[key].
// Tokens without a matching key are left as they are. Substitution is a single
// pass, so a value that itself contains a token is not expanded by this call.
func Render(subject, body string, vars map[string]string) Rendered {
	if len(vars) == 0 {
		return Rendered{Subject: subject, Body: body}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	r := strings.NewReplacer(pairs...)

	return Rendered{
		Subject: r.Replace(subject),
		Body:    r.Replace(body),
	}
}
