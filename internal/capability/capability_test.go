package capability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitabwire/quill/model"
)

func TestStaticPolicyEvaluator_builtinPolicy(t *testing.T) {
	eval, err := NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}

	tests := []struct {
		role string
		cap  string
		want bool
	}{
		{model.RoleAuthor, "submission:create", true},
		{model.RoleAuthor, "review:assign", false},
		{model.RoleReviewer, "review:respond", true},
		{model.RoleReviewer, "stage:manage", false},
		{model.RoleEditor, "stage:manage", true},
		{model.RoleEditor, "schedule:publish", true},
		{model.RoleManagingEditor, "review:assign", true},
		{model.RoleManagingEditor, "copyediting:save", true},
		{model.RoleProductionAssistant, "production:save", true},
		{model.RoleProductionAssistant, "schedule:publish", false},
		{model.RoleEditorInChief, "anything:at_all", true},
	}
	for _, tt := range tests {
		rctx := &model.RequestContext{SubjectID: "u", JournalID: "j", Roles: []string{tt.role}}
		got, err := eval.Evaluate(rctx, tt.cap)
		if err != nil {
			t.Fatalf("Evaluate(%s, %s): %v", tt.role, tt.cap, err)
		}
		if got != tt.want {
			t.Errorf("Evaluate(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestStaticPolicyEvaluator_unionAcrossRoles(t *testing.T) {
	eval, err := NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}

	rctx := &model.RequestContext{SubjectID: "u", JournalID: "j", Roles: []string{model.RoleAuthor, model.RoleReviewer}}
	caps, err := eval.ResolveCapabilities(rctx)
	if err != nil {
		t.Fatalf("ResolveCapabilities: %v", err)
	}
	if !caps.Has("submission:create") || !caps.Has("review:respond") {
		t.Errorf("expected the union of both role policies, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_policyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := []byte("roles:\n  archivist:\n    - \"artifact:approve\"\n    - \"schedule:*\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eval, err := NewStaticPolicyEvaluator(path)
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}

	rctx := &model.RequestContext{SubjectID: "u", JournalID: "j", Roles: []string{"archivist"}}
	if ok, _ := eval.Evaluate(rctx, "artifact:approve"); !ok {
		t.Error("expected artifact:approve from the policy file")
	}
	if ok, _ := eval.Evaluate(rctx, "schedule:publish"); !ok {
		t.Error("expected schedule:* to match schedule:publish")
	}
	if ok, _ := eval.Evaluate(rctx, "review:assign"); ok {
		t.Error("file policy must replace the built-in roles")
	}
}

func TestStaticPolicyEvaluator_missingFile(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("/nonexistent/policy.yaml"); err == nil {
		t.Error("expected error for missing policy file")
	}
}

// countingEvaluator counts resolution calls to observe cache behavior.
type countingEvaluator struct {
	calls int
	caps  model.CapabilitySet
}

func (c *countingEvaluator) ResolveCapabilities(_ *model.RequestContext) (model.CapabilitySet, error) {
	c.calls++
	return c.caps, nil
}

func (c *countingEvaluator) Evaluate(rctx *model.RequestContext, capability string) (bool, error) {
	caps, _ := c.ResolveCapabilities(rctx)
	return caps.Has(capability), nil
}

func (c *countingEvaluator) Sync() error { return nil }

func TestResolver_caches(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{"review:assign": true}}
	resolver := NewResolver(eval, time.Minute)
	rctx := &model.RequestContext{SubjectID: "user-1", JournalID: "journal-1"}

	for i := 0; i < 3; i++ {
		caps, err := resolver.Resolve(rctx)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !caps.Has("review:assign") {
			t.Fatal("missing capability")
		}
	}
	if eval.calls != 1 {
		t.Errorf("evaluator calls = %d, want 1 (cached)", eval.calls)
	}

	// Different journal is a different cache key.
	other := &model.RequestContext{SubjectID: "user-1", JournalID: "journal-2"}
	if _, err := resolver.Resolve(other); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if eval.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2", eval.calls)
	}
}

func TestResolver_invalidate(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{}}
	resolver := NewResolver(eval, time.Minute)
	rctx := &model.RequestContext{SubjectID: "user-1", JournalID: "journal-1"}

	if _, err := resolver.Resolve(rctx); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	resolver.Invalidate("user-1", "journal-1")
	if _, err := resolver.Resolve(rctx); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if eval.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 after invalidation", eval.calls)
	}
}

func TestResolver_expiredEntryRefetches(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{}}
	resolver := NewResolver(eval, -time.Second) // Entries expire immediately.
	rctx := &model.RequestContext{SubjectID: "user-1", JournalID: "journal-1"}

	resolver.Resolve(rctx)
	resolver.Resolve(rctx)
	if eval.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 with expired cache", eval.calls)
	}
}
