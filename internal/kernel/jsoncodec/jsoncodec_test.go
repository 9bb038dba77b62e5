package jsoncodec

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := map[string]any{"count": float64(3), "name": "writer"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out map[string]any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out["count"] != float64(3) || out["name"] != "writer" {
		t.Fatalf("round trip lost data: %+v", out)
	}
}

func TestMarshalRejectsUnsupportedTypes(t *testing.T) {
	if _, err := Marshal(map[string]any{"fn": func() {}}); err == nil {
		t.Fatal("expected marshal error for a function value")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{
		"count":  float64(1),
		"nested": map[string]any{"flag": true},
	}

	clone, err := Clone(original)
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}

	clone["count"] = float64(99)
	clone["nested"].(map[string]any)["flag"] = false

	if original["count"] != float64(1) {
		t.Fatalf("top-level mutation leaked: %v", original["count"])
	}
	if original["nested"].(map[string]any)["flag"] != true {
		t.Fatal("nested mutation leaked into original")
	}
}

func TestCloneNilMap(t *testing.T) {
	var in map[string]any
	out, err := Clone(in)
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil clone, got %v", out)
	}
}
