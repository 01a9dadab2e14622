// Package sniff extracts a declared namespace and type name from source text.
//
// It is a heuristic, not a parser: it looks for a `namespace X;` statement
// followed by a `class Y` declaration, optionally behind a line comment
// marker so that script languages can carry the declaration in a header.
// Callers treat ErrNoDeclaration as "skip this file".
package sniff

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoDeclaration is returned when the source carries no recognisable
// namespace and class pair.
var ErrNoDeclaration = errors.New("no namespace/class declaration found")

// Declaration is the namespace and type name found in a source file.
type Declaration struct {
	Namespace string
	Name      string
}

// FQCN joins namespace and name with the namespace's own separator.
func (d Declaration) FQCN() string {
	if d.Namespace == "" {
		return d.Name
	}
	sep := "."
	if strings.Contains(d.Namespace, `\`) {
		sep = `\`
	}
	return d.Namespace + sep + d.Name
}

// Sniffer extracts a Declaration from source text.
type Sniffer interface {
	Sniff(src []byte) (Declaration, error)
}

var (
	namespacePattern = regexp.MustCompile(`(?m)^[ \t]*(?:(?:--|//|#)[ \t]*)?namespace[ \t]+([A-Za-z_][A-Za-z0-9_\\.]*)[ \t]*;`)
	classPattern     = regexp.MustCompile(`(?m)^[ \t]*(?:(?:--|//|#)[ \t]*)?(?:(?:final|abstract)[ \t]+)?class[ \t]+([A-Za-z_][A-Za-z0-9_]*)`)
)

// Regexp is the default Sniffer.
type Regexp struct{}

var _ Sniffer = Regexp{}

// Sniff returns the first namespace statement and the first class
// declaration that follows it.
func (Regexp) Sniff(src []byte) (Declaration, error) {
	ns := namespacePattern.FindSubmatchIndex(src)
	if ns == nil {
		return Declaration{}, ErrNoDeclaration
	}
	rest := src[ns[1]:]
	cls := classPattern.FindSubmatch(rest)
	if cls == nil {
		return Declaration{}, ErrNoDeclaration
	}
	return Declaration{
		Namespace: strings.Trim(string(src[ns[2]:ns[3]]), `\.`),
		Name:      string(cls[1]),
	}, nil
}
