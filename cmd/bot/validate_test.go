package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs the root command with args and returns captured stdout.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return p
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
trello:
  key: k
  token: t
  boards: [b1, b2]
  frequency: 30
chat:
  driver: slack
  token: xoxb-1
  channel: C123
users:
  ann: U1
storage:
  driver: sqlite
  path: ./data/tb.db
`)
	out, err := executeCmd(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	for _, want := range []string{"Config is valid!", "Boards:    2", "Frequency: 30s", "slack -> C123", "Storage:   sqlite", "1 mapped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "config.json", `{"trello":{"key":"k","token":"t","boards":[]},"chat":{"driver":"discord"}}`)
	_, err := executeCmd(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	for _, want := range []string{"trello.boards", "chat.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestVersion(t *testing.T) {
	out, err := executeCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "trellobot dev") {
		t.Fatalf("output = %q", out)
	}
}
