// Package gitlog reads recent commits from a git repository for achievement
// detection.
package gitlog

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Commit is one non-merge commit.
type Commit struct {
	Hash    string
	Subject string
	Author  string
	Date    time.Time
}

// ShortHash returns the 8-character abbreviation used to recognise commits
// that were already recorded.
func (c Commit) ShortHash() string {
	if len(c.Hash) <= 8 {
		return c.Hash
	}
	return c.Hash[:8]
}

// Reader lists commits in a repository.
type Reader interface {
	Since(ctx context.Context, dir string, since time.Duration) ([]Commit, error)
}

// Git implements Reader with the git binary.
type Git struct {
	// Timeout bounds a single git invocation. Zero means 10 seconds.
	Timeout time.Duration
}

const logFormat = "--format=%H|%s|%an|%aI"

// Since returns the non-merge commits made in dir within the last since.
func (g Git) Since(ctx context.Context, dir string, since time.Duration) ([]Commit, error) {
	timeout := g.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hours := int(since.Hours())
	if hours < 1 {
		hours = 1
	}
	cmd := exec.CommandContext(ctx, "git", "log",
		fmt.Sprintf("--since=%d hours ago", hours), logFormat, "--no-merges")
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git log failed: %w (output: %s)", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("git log: %w", err)
	}
	return Parse(string(out)), nil
}

// Parse reads `git log` output in hash|subject|author|date form. Lines that
// do not parse are skipped. Subjects may themselves contain "|".
func Parse(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := strings.Index(line, "|")
		last := strings.LastIndex(line, "|")
		if first < 0 || first == last {
			continue
		}
		rest := line[:last]
		mid := strings.LastIndex(rest, "|")
		if mid <= first {
			continue
		}
		date, err := time.Parse(time.RFC3339, line[last+1:])
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			Hash:    line[:first],
			Subject: line[first+1 : mid],
			Author:  line[mid+1 : last],
			Date:    date.UTC(),
		})
	}
	return commits
}
