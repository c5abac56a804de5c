package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ModuleInfo is what the watcher needs to know about a go.mod file
type ModuleInfo struct {
	Path string
	Dir  string
	// LocalReplaces are directories of replace directives pointing at the filesystem
	LocalReplaces []string
}

// FindGoModFile searches for go.mod starting from the given directory and walking up
func FindGoModFile(startDir string) (string, error) {
	currentDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(currentDir, "go.mod")
		if info, err := os.Stat(goModPath); err == nil && !info.IsDir() {
			return goModPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", fmt.Errorf("go.mod file not found above %s", startDir)
}

// ParseGoMod reads a go.mod file with the official modfile parser
func ParseGoMod(goModPath string) (*ModuleInfo, error) {
	cleanPath := filepath.Clean(goModPath)
	if filepath.Base(cleanPath) != "go.mod" {
		return nil, fmt.Errorf("file is not a go.mod file: %s", goModPath)
	}

	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read go.mod file: %w", err)
	}

	modFile, err := modfile.Parse(cleanPath, content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod file: %w", err)
	}
	if modFile.Module == nil {
		return nil, fmt.Errorf("no module declaration found in %s", goModPath)
	}

	dir := filepath.Dir(cleanPath)
	info := &ModuleInfo{Path: modFile.Module.Mod.Path, Dir: dir}
	for _, replace := range modFile.Replace {
		if replace.New.Version != "" || !isLocalPath(replace.New.Path) {
			continue
		}
		target := replace.New.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		info.LocalReplaces = append(info.LocalReplaces, filepath.Clean(target))
	}
	return info, nil
}

func isLocalPath(path string) bool {
	return filepath.IsAbs(path) || strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../")
}
