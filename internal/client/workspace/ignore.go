package workspace

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/cloudsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".cloudsyncignore"

var defaultIgnoreLines = []string{
	ignoreFileName,
	"cloudsync.yaml",
	"**/*.tmp",
	// build outputs
	"node_modules/",
	"built/",
	"dist/",
	// IDE/Editor-specific
	".vscode",
	".idea",
	// General excludes
	".git",
	"*.log",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which files of a project directory are imported.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus the project's ignore file, if any.
func (il *IgnoreList) Load() {
	lines := append([]string(nil), defaultIgnoreLines...)

	ignorePath := filepath.Join(il.baseDir, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("read ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	il.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore takes a slash separated path relative to the base dir.
func (il *IgnoreList) ShouldIgnore(rel string) bool {
	if il.ignore == nil {
		il.Load()
	}
	return il.ignore.MatchesPath(rel)
}
