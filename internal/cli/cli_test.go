package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

const sampleWorkflow = `version "0.1"
triggers "push"
chain {
    machine "default-worker"
    fragment {
        run "npm install && npm test"
    }
    fragment {
        from "https://fragments.example.com/deploy.kdl"
    }
}
`

const sampleImport = `fragment {
    run "./deploy.sh"
}
`

func writeWorkflow(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.kdl")
	if err := os.WriteFile(path, []byte(sampleWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "deploy.kdl"), []byte(sampleImport), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeWorkflow(t)

	out, err := runCommand(t, "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "is valid") {
		t.Fatalf("output: got=%q", out)
	}
}

func TestValidateRejectsBadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.kdl")
	bad := "version \"0.1\"\ntriggers \"push\"\nchain {\n    machine \"m\"\n    fragment {\n        run \"x\"\n        from \"y\"\n    }\n}\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runCommand(t, "validate", path)
	if err == nil {
		t.Fatal("validate: want error for run+from fragment")
	}
}

func TestInspectCommand(t *testing.T) {
	path := writeWorkflow(t)

	out, err := runCommand(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "Fragments (2):") {
		t.Fatalf("fragment count: got=%q", out)
	}
	if !strings.Contains(out, "npm install") {
		t.Fatalf("script preview missing: got=%q", out)
	}
	if !strings.Contains(out, "deploy.kdl") {
		t.Fatalf("source url missing: got=%q", out)
	}
}

func TestSubmitCommand(t *testing.T) {
	path := writeWorkflow(t)
	chainID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parse" {
			t.Fatalf("path: want=/parse got=%s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["content"] == "" {
			t.Fatal("content missing from submit payload")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"chain_id":       chainID,
			"fragment_count": 2,
			"message":        "workflow parsed and stored successfully",
		})
	}))
	defer srv.Close()

	out, err := runCommand(t, "submit", path, "--parser-url", srv.URL, "--tenant", uuid.New().String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, chainID.String()) {
		t.Fatalf("output: got=%q", out)
	}
}

func TestSubmitSurfacesParseError(t *testing.T) {
	path := writeWorkflow(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "unsupported version", "code": "PARSE_ERROR"},
		})
	}))
	defer srv.Close()

	_, err := runCommand(t, "submit", path, "--parser-url", srv.URL, "--tenant", uuid.New().String())
	if err == nil || !strings.Contains(err.Error(), "PARSE_ERROR") {
		t.Fatalf("error: want PARSE_ERROR got=%v", err)
	}
}
