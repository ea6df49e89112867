// Package literal parses a single literal expression — the same grammar a
// define value or an exported-value round-trip uses — into a cty.Value.
//
// This deliberately reuses the HCL expression grammar (lists, object/maps,
// numbers, strings, bool, null) rather than writing a bespoke tokenizer:
// specialistvlad-burstgridgo already carries hashicorp/hcl/v2 and
// zclconf/go-cty for decoding block arguments into cty.Value, and a literal
// expression is just an HCL expression evaluated with no variables and no
// functions in scope.
package literal

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Parse evaluates src as a single literal expression and returns its value.
// Anything that requires a variable, a function call, or a traversal is
// rejected — this is intentionally not a general expression evaluator.
//
// true/false/null are recognized case-insensitively before falling back to
// HCL's grammar, since HCL's own keywords are lowercase-only and the CLI
// contract calls for case-insensitive matching.
func Parse(src string) (cty.Value, error) {
	switch strings.ToLower(strings.TrimSpace(src)) {
	case "true":
		return cty.True, nil
	case "false":
		return cty.False, nil
	case "null":
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(src), "<define>", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("literal: %s", diags.Error())
	}

	for _, v := range expr.Variables() {
		return cty.NilVal, fmt.Errorf("literal: %q is not a literal value (references %q)", src, v.RootName())
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("literal: %s", diags.Error())
	}
	if !val.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("literal: %q did not evaluate to a known value", src)
	}
	return val, nil
}
