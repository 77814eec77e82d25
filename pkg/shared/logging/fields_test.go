package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestStandardFields_Component(t *testing.T) {
	fields := NewFields().Component("memory-router")
	if fields["component"] != "memory-router" {
		t.Errorf("Component() = %v, want %v", fields["component"], "memory-router")
	}
}

func TestStandardFields_Operation(t *testing.T) {
	fields := NewFields().Operation("query")
	if fields["operation"] != "query" {
		t.Errorf("Operation() = %v, want %v", fields["operation"], "query")
	}
}

func TestStandardFields_Resource(t *testing.T) {
	fields := NewFields().Resource("adapter", "yaml")
	if fields["resource_type"] != "adapter" {
		t.Errorf("Resource() resource_type = %v, want %v", fields["resource_type"], "adapter")
	}
	if fields["resource_name"] != "yaml" {
		t.Errorf("Resource() resource_name = %v, want %v", fields["resource_name"], "yaml")
	}
}

func TestStandardFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("adapter", "")
	if fields["resource_type"] != "adapter" {
		t.Errorf("Resource() resource_type = %v, want %v", fields["resource_type"], "adapter")
	}
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestStandardFields_Duration(t *testing.T) {
	duration := 150 * time.Millisecond
	fields := NewFields().Duration(duration)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want %v", fields["duration_ms"], int64(150))
	}
}

func TestStandardFields_Error(t *testing.T) {
	err := errors.New("test error")
	fields := NewFields().Error(err)
	if fields["error"] != "test error" {
		t.Errorf("Error() = %v, want %v", fields["error"], "test error")
	}
}

func TestStandardFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestStandardFields_Chaining(t *testing.T) {
	fields := NewFields().
		Component("router").
		Operation("route").
		Source("jira").
		IssueKey("AAP-7")

	if fields["component"] != "router" || fields["operation"] != "route" ||
		fields["source"] != "jira" || fields["issue_key"] != "AAP-7" {
		t.Errorf("chained fields incomplete: %+v", fields)
	}
}

func TestFields_ToLogrus(t *testing.T) {
	fields := NewFields().Component("x")
	lf := fields.ToLogrus()
	if lf["component"] != "x" {
		t.Errorf("ToLogrus() lost field: %+v", lf)
	}
}

func TestFields_ToZap(t *testing.T) {
	fields := NewFields().Component("x")
	zf := fields.ToZap()
	if len(zf) != 1 {
		t.Errorf("ToZap() = %d fields, want 1", len(zf))
	}
}
