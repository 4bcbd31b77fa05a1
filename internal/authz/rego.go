package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"gopkg.in/yaml.v3"
)

//go:embed signin.rego
var policyContent string

// PolicyData is the allow list evaluated by the sign-in policy.
type PolicyData struct {
	Emails  []string `yaml:"emails"`
	Domains []string `yaml:"domains"`
}

// LoadPolicyData reads PolicyData from a YAML file.
func LoadPolicyData(path string) (PolicyData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyData{}, fmt.Errorf("failed to read policy data %s: %w", path, err)
	}
	return ParsePolicyData(raw)
}

// ParsePolicyData decodes YAML policy data.
func ParsePolicyData(raw []byte) (PolicyData, error) {
	var data PolicyData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return PolicyData{}, fmt.Errorf("failed to unmarshal policy data: %w", err)
	}
	return data, nil
}

func (d PolicyData) store() map[string]interface{} {
	lowered := func(values []string) []interface{} {
		out := make([]interface{}, 0, len(values))
		for _, v := range values {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return map[string]interface{}{
		"emails":  lowered(d.Emails),
		"domains": lowered(d.Domains),
	}
}

// RegoPolicy evaluates the embedded sign-in policy with OPA.
type RegoPolicy struct {
	allow      rego.PreparedEvalQuery
	violations rego.PreparedEvalQuery
}

func NewRegoPolicy(ctx context.Context, data PolicyData) (*RegoPolicy, error) {
	store := inmem.NewFromObject(data.store())

	allow, err := rego.New(
		rego.Query("data.signin.allow"),
		rego.Module("signin.rego", policyContent),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	violations, err := rego.New(
		rego.Query("data.signin.violations"),
		rego.Module("signin.rego", policyContent),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare violations query: %w", err)
	}

	return &RegoPolicy{
		allow:      allow,
		violations: violations,
	}, nil
}

func (p *RegoPolicy) Name() string {
	return "RegoSignIn"
}

func (p *RegoPolicy) Authorize(ctx context.Context, profile Profile) error {
	input := map[string]interface{}{
		"sub":            profile.Sub,
		"email":          profile.Email,
		"email_verified": profile.EmailVerified,
	}

	results, err := p.allow.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("access denied: policy evaluation returned no results")
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return fmt.Errorf("access denied: policy evaluation returned non-boolean result")
	}
	if allowed {
		return nil
	}

	violations, err := p.getViolations(ctx, input)
	if err != nil {
		return err
	}
	return fmt.Errorf("access denied: %s", strings.Join(violations, "; "))
}

func (p *RegoPolicy) getViolations(ctx context.Context, input map[string]interface{}) ([]string, error) {
	results, err := p.violations.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate violations: %w", err)
	}

	if len(results) == 0 || results[0].Expressions[0].Value == nil {
		return []string{"unknown policy violation"}, nil
	}

	// Convert the violations to strings
	var violations []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, violation := range v {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]interface{}:
		// Handle set type from Rego
		for violation := range v {
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return []string{"unknown policy violation"}, nil
	}
	sort.Strings(violations)
	return violations, nil
}
