package toolbridge

import (
	"context"
	"fmt"
	"testing"
)

func TestRegistryDescribeOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "get_weather", Description: "Get the weather"}, func(ctx context.Context, params map[string]any) (string, error) {
		return "", nil
	})
	reg.Register(Spec{Name: "get_time", Description: "Get the time"}, func(ctx context.Context, params map[string]any) (string, error) {
		return "", nil
	})

	specs := reg.Describe()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "get_weather" || specs[1].Name != "get_time" {
		t.Fatalf("specs not in registration order: %+v", specs)
	}
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "echo"}, func(ctx context.Context, params map[string]any) (string, error) {
		return fmt.Sprintf("%v", params["value"]), nil
	})
	reg.Register(Spec{Name: "boom"}, func(ctx context.Context, params map[string]any) (string, error) {
		return "", fmt.Errorf("kaboom")
	})

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "hi" {
		t.Fatalf("unexpected result %q", out)
	}

	if _, err := reg.Execute(context.Background(), "boom", nil); err == nil {
		t.Fatalf("expected error from failing tool")
	}
	if _, err := reg.Execute(context.Background(), "missing", nil); err == nil {
		t.Fatalf("expected error for unregistered tool")
	}
}

func TestParamsFromSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string", "description": "City name"},
			"units":    map[string]any{"type": "string", "description": "Unit system"},
		},
		"required": []any{"location"},
	}

	params := paramsFromSchema(schema)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Name != "location" || !params[0].Required || params[0].Description != "City name" {
		t.Fatalf("unexpected first param: %+v", params[0])
	}
	if params[1].Name != "units" || params[1].Required {
		t.Fatalf("unexpected second param: %+v", params[1])
	}

	if got := paramsFromSchema(nil); got != nil {
		t.Fatalf("expected nil params for nil schema")
	}
}
