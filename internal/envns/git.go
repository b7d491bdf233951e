package envns

import (
	"os"
	"path/filepath"
	"strings"
)

// maxUpwardSearchLevels limits how far up the directory tree to search
// for a .git directory.
const maxUpwardSearchLevels = 10

// DetectBranch reads the current branch from the repository containing
// startDir, without shelling out to git. Detached HEADs and directories
// outside any repository yield an empty branch.
func DetectBranch(startDir string) GitContext {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		head := filepath.Join(dir, ".git", "HEAD")
		if data, err := os.ReadFile(head); err == nil {
			return GitContext{Branch: parseHead(string(data))}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return GitContext{}
}

// parseHead extracts the branch name from a .git/HEAD file. A detached
// HEAD holds a bare commit hash and has no branch.
func parseHead(content string) string {
	content = strings.TrimSpace(content)
	ref, ok := strings.CutPrefix(content, "ref: ")
	if !ok {
		return ""
	}
	return strings.TrimPrefix(ref, "refs/heads/")
}
