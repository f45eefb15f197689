// Package sqlinline holds the marker-tagged SQL executed through infra.SQLRunner.
// Table names are configurable, so statements reference them as %[1]s (and
// %[2]s for index names) and are bound with Bind before execution.
package sqlinline

import "fmt"

// Bind substitutes already-quoted identifiers into a query template.
func Bind(query string, idents ...string) string {
	args := make([]any, len(idents))
	for i, ident := range idents {
		args[i] = ident
	}
	return fmt.Sprintf(query, args...)
}
