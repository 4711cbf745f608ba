package hook

import (
	"fmt"
	"regexp"
)

var (
	dangerousRM = []*regexp.Regexp{
		regexp.MustCompile(`(?i)rm\s+-(rf|fr)\s+/`),
		regexp.MustCompile(`(?i)rm\s+-(rf|fr)\s+~`),
		regexp.MustCompile(`(?i)rm\s+-(rf|fr)\s+\*`),
		regexp.MustCompile(`(?i)rm\s+-(rf|fr)\s+\.\.`),
	}

	// Recursive deletes under these paths are allowed.
	safeRMDirs = regexp.MustCompile(`/tmp/|/var/tmp/|trees/|\.cache/|node_modules/|__pycache__/|\.pytest_cache/|dist/|build/`)

	sensitiveFiles = regexp.MustCompile(`(?i)(\.env$|\.env\.local$|\.env\.production$|credentials\.json$|secrets\.json$|\.pem$|\.key$|id_rsa|id_ed25519)`)
	allowedFiles   = regexp.MustCompile(`(?i)\.env\.(sample|example|template)$`)
)

// CheckToolUse reports whether a tool call should be blocked and why.
// Bash commands are checked for destructive rm invocations; Read, Write and
// Edit are checked for access to credential files.
func CheckToolUse(toolName string, input map[string]any) (allowed bool, reason string) {
	switch toolName {
	case "Bash":
		command, _ := input["command"].(string)
		if blocked, why := dangerousCommand(command); blocked {
			return false, why
		}
	case "Read", "Write", "Edit":
		path, _ := input["file_path"].(string)
		if path != "" && !allowedFiles.MatchString(path) && sensitiveFiles.MatchString(path) {
			return false, fmt.Sprintf("Sensitive file access detected: %s", path)
		}
	}
	return true, ""
}

func dangerousCommand(command string) (bool, string) {
	for _, re := range dangerousRM {
		if re.MatchString(command) && !safeRMDirs.MatchString(command) {
			return true, fmt.Sprintf("Dangerous rm command detected: matches pattern '%s'", re.String())
		}
	}
	return false, ""
}
