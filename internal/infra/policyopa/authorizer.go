// Package policyopa authorizes revocation actions with an embedded Rego
// policy.
package policyopa

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"certledger/internal/domain"
	"certledger/internal/infra/auth/rbac"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const decisionQuery = "data.certledger.authz.decision"

//go:embed authz.rego
var policy string

type Authorizer struct {
	query rego.PreparedEvalQuery
}

func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	return NewAuthorizerWithPolicy(ctx, policy)
}

// NewAuthorizerWithPolicy compiles module in place of the embedded policy.
// The module must define data.certledger.authz.decision.
func NewAuthorizerWithPolicy(ctx context.Context, module string) (*Authorizer, error) {
	compiler := ast.NewCompiler().WithCapabilities(restrictedCapabilities())
	prepared, err := rego.New(
		rego.Query(decisionQuery),
		rego.Compiler(compiler),
		rego.Module("authz.rego", module),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	return &Authorizer{query: prepared}, nil
}

type decision struct {
	Allow bool
	Code  string
}

func (a *Authorizer) Authorize(ctx context.Context, principal domain.Principal, permission string, resource domain.Resource) error {
	if principal.IsZero() {
		return domain.ErrUnauthorized
	}
	input := map[string]any{
		"principal": map[string]any{
			"id":   principal.ActorID,
			"role": string(principal.Role),
		},
		"permission": permission,
		"resource": map[string]any{
			"certificate_id": resource.CertificateID,
			"issuer_id":      resource.IssuerID,
		},
	}
	results, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate authz policy: %w", err)
	}
	d, err := decode(results)
	if err != nil {
		return err
	}
	if d.Allow {
		return nil
	}
	return &rbac.AuthzError{Code: d.Code, Err: domain.ErrForbidden}
}

func decode(results rego.ResultSet) (decision, error) {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision{}, errors.New("empty authz decision")
	}
	obj, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return decision{}, fmt.Errorf("unexpected authz decision %T", results[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	code, _ := obj["code"].(string)
	return decision{Allow: allow, Code: code}, nil
}

var _ domain.Authorizer = (*Authorizer)(nil)
