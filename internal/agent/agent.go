// Package agent resolves which agent identity and project a session belongs
// to, and reads agent definition files.
//
// Resolution order: an explicitly named agent, then the first non-subagent
// definition in the project's .claude/agents, then the first in
// ~/.claude/agents, then the configured fallback agent.
package agent

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/ltm/internal/config"
	"github.com/lazypower/ltm/internal/model"
)

// ErrKeyExists is returned when a definition already carries a signing key.
var ErrKeyExists = errors.New("agent already has a signing key")

// Definition is an agent definition file: markdown with YAML frontmatter.
type Definition struct {
	Path       string
	Name       string // file name without .md
	ID         string
	SigningKey string
	Subagent   bool
}

// frontmatter accepts both a top-level signing_key and an ltm: section.
type frontmatter struct {
	SigningKey string `yaml:"signing_key"`
	LTM        struct {
		ID         string `yaml:"id"`
		SigningKey string `yaml:"signing_key"`
		Subagent   bool   `yaml:"subagent"`
	} `yaml:"ltm"`
}

// Agent converts the definition into the stored agent identity.
func (d Definition) Agent() *model.Agent {
	return &model.Agent{
		ID:             d.ID,
		Name:           d.Name,
		DefinitionPath: d.Path,
		SigningKey:     d.SigningKey,
	}
}

// ParseDefinition reads a definition from its file content. A file without
// frontmatter is still a definition, identified by its name.
func ParseDefinition(path string, content []byte) (Definition, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d := Definition{Path: path, Name: name, ID: Slugify(name)}

	raw, _, ok := splitFrontmatter(content)
	if !ok {
		return d, nil
	}
	var fm frontmatter
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return d, fmt.Errorf("parse frontmatter %s: %w", path, err)
	}
	if fm.LTM.ID != "" {
		d.ID = fm.LTM.ID
	}
	d.SigningKey = fm.LTM.SigningKey
	if d.SigningKey == "" {
		d.SigningKey = fm.SigningKey
	}
	d.Subagent = fm.LTM.Subagent
	return d, nil
}

// splitFrontmatter returns the YAML between the leading "---" lines and the
// remaining body.
func splitFrontmatter(content []byte) (yamlPart, body []byte, ok bool) {
	if !bytes.HasPrefix(content, []byte("---")) {
		return nil, content, false
	}
	rest := content[3:]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return nil, content, false
	}
	rest = rest[nl+1:]

	var end int
	switch {
	case bytes.HasPrefix(rest, []byte("---")):
		// empty frontmatter
		yamlPart, body = nil, rest[3:]
	default:
		end = bytes.Index(rest, []byte("\n---"))
		if end < 0 {
			return nil, content, false
		}
		yamlPart, body = rest[:end+1], rest[end+4:]
	}
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return yamlPart, body, true
}

// LoadDefinitions reads every *.md definition in dir, sorted by file name. A
// missing directory yields no definitions.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read agents dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		d, err := LoadDefinition(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Inputs is everything Resolve needs. It performs no I/O.
type Inputs struct {
	Explicit string // agent name requested by the user, may be empty
	Local    []Definition
	Global   []Definition
	Fallback config.AgentConfig
}

// Resolve picks the session's agent. An explicit name may select a subagent;
// the directory scans skip them.
func Resolve(in Inputs) *model.Agent {
	if in.Explicit != "" {
		want := strings.ToLower(in.Explicit)
		for _, defs := range [][]Definition{in.Local, in.Global} {
			for _, d := range defs {
				if strings.ToLower(d.Name) == want || d.ID == want {
					return d.Agent()
				}
			}
		}
	}
	for _, defs := range [][]Definition{in.Local, in.Global} {
		for _, d := range defs {
			if !d.Subagent {
				return d.Agent()
			}
		}
	}
	return &model.Agent{
		ID:         in.Fallback.ID,
		Name:       in.Fallback.Name,
		SigningKey: in.Fallback.SigningKey,
	}
}

// LocalDir and GlobalDir return the definition directories for a project
// and a home directory.
func LocalDir(projectDir string) string { return filepath.Join(projectDir, ".claude", "agents") }
func GlobalDir(home string) string      { return filepath.Join(home, ".claude", "agents") }

// ResolveFromDisk loads the local and global definitions and resolves.
func ResolveFromDisk(projectDir, home, explicit string, fallback config.AgentConfig) (*model.Agent, error) {
	local, err := LoadDefinitions(LocalDir(projectDir))
	if err != nil {
		return nil, err
	}
	global, err := LoadDefinitions(GlobalDir(home))
	if err != nil {
		return nil, err
	}
	return Resolve(Inputs{Explicit: explicit, Local: local, Global: global, Fallback: fallback}), nil
}

// ProjectFor derives the project for a working directory. Its id is the
// slugified directory name.
func ProjectFor(dir string) (*model.Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	name := filepath.Base(abs)
	return &model.Project{ID: Slugify(name), Name: name, Path: abs}, nil
}

// Slugify lowercases s and collapses every run of characters outside
// [a-z0-9] into a single hyphen. An empty result becomes "default".
func Slugify(s string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevHyphen = false
		} else if !prevHyphen && b.Len() > 0 {
			b.WriteByte('-')
			prevHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "default"
	}
	return out
}

// AddSigningKey writes key as a top-level signing_key into the frontmatter
// of the definition at path. Existing keys are never replaced.
func AddSigningKey(path, key string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent %s: %w", path, err)
	}
	d, err := ParseDefinition(path, content)
	if err != nil {
		return err
	}
	if d.SigningKey != "" {
		return fmt.Errorf("%w: %s", ErrKeyExists, path)
	}

	raw, body, ok := splitFrontmatter(content)
	if !ok {
		return fmt.Errorf("agent file %s has no frontmatter", path)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse frontmatter %s: %w", path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("agent file %s: frontmatter is not a mapping", path)
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "signing_key"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key, Style: yaml.DoubleQuotedStyle},
	)

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	enc.Close()
	buf.WriteString("---\n")
	buf.Write(body)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), info.Mode().Perm())
}

// FindDefinition locates <name>.md in the project's agents directory, then
// in the home directory's. It returns "" when neither exists.
func FindDefinition(name, projectDir, home string) string {
	file := strings.ToLower(name) + ".md"
	for _, dir := range []string{LocalDir(projectDir), GlobalDir(home)} {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadDefinition reads and parses the definition at path.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read agent %s: %w", path, err)
	}
	return ParseDefinition(path, data)
}
