package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
)

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	env := Success(map[string]any{"id": "b-1", "is_refill_required": true}, "quote is stale")
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if decoded["success"] != true {
		t.Fatalf("success = %v, want true", decoded["success"])
	}
	data := decoded["data"].(map[string]any)
	if data["id"] != "b-1" {
		t.Fatalf("data.id = %v", data["id"])
	}
	if warnings := decoded["warnings"].([]any); warnings[0] != "quote is stale" {
		t.Fatalf("warnings = %v", warnings)
	}
	if _, ok := decoded["meta"].(map[string]any)["version"]; !ok {
		t.Fatalf("meta.version missing")
	}
}

func TestRenderPlainSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	env := Success(map[string]any{"zeta": 1, "alpha": "x", "nested": map[string]any{"k": 2}})
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("render: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "alpha=x") {
		t.Fatalf("keys must be sorted, got %q", line)
	}
	if !strings.Contains(line, `nested={"k":2}`) {
		t.Fatalf("nested values must be json-encoded, got %q", line)
	}
}

func TestRenderFailureCarriesCode(t *testing.T) {
	var buf bytes.Buffer
	env := Failure(clierr.New(clierr.CodeUsage, "bad flag"))
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "error code=2 message=bad flag" {
		t.Fatalf("plain error = %q", got)
	}

	buf.Reset()
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("render: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Success || decoded.Error == nil || decoded.Error.Code != int(clierr.CodeUsage) {
		t.Fatalf("json error envelope = %+v", decoded)
	}
}
