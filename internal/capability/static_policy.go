package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/quill/model"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// defaultPolicy is the built-in role→capability mapping used when no policy
// file is configured. Capabilities follow the "<stage>:<action>" convention;
// "stage:manage" is the managing-role override that permits acting on
// another assignee's task.
var defaultPolicy = map[string][]string{
	model.RoleAuthor: {
		"submission:create", "submission:submit",
		"artifact:upload_draft", "artifact:confirm",
	},
	model.RoleReviewer: {
		"review:respond", "review:complete",
	},
	model.RoleEditor: {
		"review:assign", "review:complete",
		"copyediting:assign", "copyediting:respond", "copyediting:save", "copyediting:complete",
		"production:assign",
		"artifact:approve",
		"stage:manage",
		"schedule:create", "schedule:publish", "schedule:cancel",
	},
	model.RoleManagingEditor: {
		"review:*", "copyediting:*", "production:*",
		"artifact:*", "schedule:*", "stage:manage",
	},
	model.RoleProductionAssistant: {
		"production:respond", "production:save", "production:complete",
	},
	model.RoleEditorInChief:  {"*"},
	model.RoleAdmin:          {"*"},
	model.RoleJournalManager: {"*"},
}

// StaticPolicyEvaluator resolves capabilities from a static YAML file mapping
// journal roles to capability strings, or from the built-in policy when no
// file is given.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates a new evaluator that loads policies from
// path. An empty path selects the built-in default policy.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of capabilities for all roles in the
// request context.
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range rctx.Roles {
		for _, cap := range e.policy.Roles[role] {
			caps[cap] = true
		}
	}
	return caps, nil
}

// Evaluate checks a single capability against the resolved set.
func (e *StaticPolicyEvaluator) Evaluate(rctx *model.RequestContext, capability string) (bool, error) {
	caps, err := e.ResolveCapabilities(rctx)
	if err != nil {
		return false, err
	}
	return caps.Has(capability), nil
}

// Sync reloads the policy file from disk. With no path configured it resets
// to the built-in policy.
func (e *StaticPolicyEvaluator) Sync() error {
	if e.path == "" {
		e.mu.Lock()
		e.policy = policyFile{Roles: defaultPolicy}
		e.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
