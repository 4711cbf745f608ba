package hook

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// DetectSourceApp names the project the agent runs in: the origin remote's
// repository name, else the base name of CLAUDE_PROJECT_DIR or the working
// directory, else "unknown".
func DetectSourceApp() string {
	dir := os.Getenv("CLAUDE_PROJECT_DIR")
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return sourceAppFor(dir)
}

func sourceAppFor(dir string) string {
	if dir == "" {
		return "unknown"
	}
	if name := gitRepoName(dir); name != "" {
		return name
	}
	if base := filepath.Base(dir); base != "." && base != string(filepath.Separator) {
		return base
	}
	return "unknown"
}

func gitRepoName(dir string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return repoName(strings.TrimSpace(string(out)))
}

// repoName extracts "repo" from https://host/user/repo.git or
// git@host:user/repo.git.
func repoName(remote string) string {
	if remote == "" {
		return ""
	}
	name := remote
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
