// Package fixtures holds manifest bodies and script sources shared by tests.
package fixtures

import (
	"encoding/json"
	"fmt"
)

// Decl is one plugin declaration for Manifest.
type Decl struct {
	Class        string
	Environments []string
	Overrides    []string
	// Degenerate writes the entry as "".
	Degenerate bool
}

// Manifest renders a bundles.json body. Declaration order is preserved.
func Manifest(action string, decls ...Decl) string {
	body := `{"bundles": {`
	for i, d := range decls {
		if i > 0 {
			body += ", "
		}
		key, _ := json.Marshal(d.Class)
		if d.Degenerate {
			body += string(key) + `: ""`
			continue
		}
		envs, _ := json.Marshal(nonNil(d.Environments))
		overrides, _ := json.Marshal(nonNil(d.Overrides))
		body += fmt.Sprintf(`%s: {"environments": %s, "overrides": %s}`, key, envs, overrides)
	}
	body += "}"
	if action != "" {
		a, _ := json.Marshal(action)
		body += `, "actionManager": ` + string(a)
	}
	return body + "}"
}

// ManifestAll declares every class under "all".
func ManifestAll(classes ...string) string {
	decls := make([]Decl, 0, len(classes))
	for _, c := range classes {
		decls = append(decls, Decl{Class: c, Environments: []string{"all"}})
	}
	return Manifest("", decls...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
