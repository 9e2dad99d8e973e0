package policyopa

import "github.com/open-policy-agent/opa/ast"

// The authorization policy only compares and tests membership. Anything else
// (http.send, time.now_ns, ...) is rejected at compile time.
var allowedBuiltins = map[string]struct{}{
	"assign":            {},
	"eq":                {},
	"equal":             {},
	"neq":               {},
	"internal.member_2": {},
}

func restrictedCapabilities() *ast.Capabilities {
	caps := ast.CapabilitiesForThisVersion()
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range caps.Builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			allowed = append(allowed, builtin)
		}
	}
	caps.Builtins = allowed
	return caps
}
