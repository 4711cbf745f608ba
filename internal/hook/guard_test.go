package hook

import "testing"

func TestCheckToolUse(t *testing.T) {
	tests := []struct {
		tool    string
		input   map[string]any
		allowed bool
	}{
		{"Bash", map[string]any{"command": "ls -la"}, true},
		{"Bash", map[string]any{"command": "rm -rf /"}, false},
		{"Bash", map[string]any{"command": "rm -rf ~"}, false},
		{"Bash", map[string]any{"command": "RM -FR *"}, false},
		{"Bash", map[string]any{"command": "rm -rf .."}, false},
		{"Bash", map[string]any{"command": "rm -rf /tmp/build-123"}, true},
		{"Bash", map[string]any{"command": "rm -rf ./node_modules/"}, true},
		{"Bash", map[string]any{}, true},
		{"Read", map[string]any{"file_path": "/app/.env"}, false},
		{"Write", map[string]any{"file_path": "/home/u/.ssh/id_rsa"}, false},
		{"Edit", map[string]any{"file_path": "certs/server.pem"}, false},
		{"Read", map[string]any{"file_path": "/app/.env.example"}, true},
		{"Read", map[string]any{"file_path": "/app/main.go"}, true},
		{"Glob", map[string]any{"file_path": "/app/.env"}, true},
	}

	for _, tc := range tests {
		allowed, reason := CheckToolUse(tc.tool, tc.input)
		if allowed != tc.allowed {
			t.Errorf("CheckToolUse(%s, %v) allowed=%v, want %v (reason %q)", tc.tool, tc.input, allowed, tc.allowed, reason)
		}
		if !allowed && reason == "" {
			t.Errorf("CheckToolUse(%s, %v) blocked without a reason", tc.tool, tc.input)
		}
	}
}
