package dockbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"go.uber.org/zap"
)

// SourceDigest hashes the source tree: relative paths, executable bits, symlink
// targets and file contents of every entry not matched by ignore. Two trees with
// the same content yield the same digest regardless of timestamps.
func SourceDigest(sourceDir string, ignore []string) (string, error) {
	hasher := sha256.New()
	count := 0

	err := walkSource(sourceDir, ignore, func(rel string, d fs.DirEntry, absPath string) error {
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			fmt.Fprintf(hasher, "d %s\n", rel)
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(absPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(hasher, "l %s %s\n", rel, target)
		case info.Mode().IsRegular():
			fmt.Fprintf(hasher, "f %s %t %d\n", rel, info.Mode()&0111 != 0, info.Size())
			if err := hashFile(hasher, absPath); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash source tree %s: %w", sourceDir, err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	zlog.Debug("computed source digest",
		zap.String("source_dir", sourceDir),
		zap.Int("files", count),
		zap.String("digest", digest))

	return digest, nil
}

// CopySource copies the source tree into dst, skipping ignored entries
func CopySource(sourceDir, dst string, ignore []string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	return walkSource(sourceDir, ignore, func(rel string, d fs.DirEntry, absPath string) error {
		target := filepath.Join(dst, filepath.FromSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(absPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(absPath, target)
		default:
			zlog.Debug("skipping special file", zap.String("path", absPath))
			return nil
		}
	})
}

// walkSource visits every non-ignored entry below root in lexical order.
// rel is slash separated and never empty (root itself is not visited).
func walkSource(root string, ignore []string, visit func(rel string, d fs.DirEntry, absPath string) error) error {
	matcher, err := newIgnoreMatcher(ignore)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		ignored, err := matcher.MatchesOrParentMatches(rel)
		if err != nil {
			return fmt.Errorf("failed to match %s: %w", rel, err)
		}
		if ignored {
			// An exclusion may re-include entries below an ignored directory
			if d.IsDir() && !matcher.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}

		return visit(filepath.ToSlash(rel), d, absPath)
	})
}

// newIgnoreMatcher compiles .dockerignore patterns. As in .gitignore, a pattern
// without a slash also matches at any depth.
func newIgnoreMatcher(patterns []string) (*patternmatcher.PatternMatcher, error) {
	expanded := make([]string, 0, 2*len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(strings.TrimSpace(pattern), "/")
		if pattern == "" || pattern == "!" {
			continue
		}
		expanded = append(expanded, pattern)

		negation, name := "", pattern
		if strings.HasPrefix(pattern, "!") {
			negation, name = "!", pattern[1:]
		}
		if !strings.Contains(name, "/") && !strings.HasPrefix(name, "**") {
			expanded = append(expanded, negation+"**/"+name)
		}
	}

	matcher, err := patternmatcher.New(expanded)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}
	return matcher, nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// copyFile copies a single file preserving its permission bits
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
