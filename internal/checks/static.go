package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/expect"
	"github.com/mailoreply/smoketest/internal/scanner"
)

// StaticCheck looks for text patterns in one source file of the
// application. It only proves that code is present, not that it works.
type StaticCheck struct {
	Name       string   `yaml:"name"`
	File       string   `yaml:"file"`
	Patterns   []string `yaml:"patterns"`
	MinMatches int      `yaml:"min_matches"`

	compiled []*regexp.Regexp
}

// LoadStaticChecks reads every .yml/.yaml definition under path. A
// definition without a name is named after its file.
func LoadStaticChecks(path string) ([]*StaticCheck, error) {
	if path == "" {
		return nil, errors.New("empty static checks path")
	}

	var files []string

	if err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Strings(files)

	var checks []*StaticCheck
	names := make(map[string]string)

	for _, file := range files {
		fileExt := filepath.Ext(file)
		if fileExt != ".yml" && fileExt != ".yaml" {
			continue
		}

		yamlFile, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var c StaticCheck
		if err = yaml.Unmarshal(yamlFile, &c); err != nil {
			return nil, errors.Wrapf(err, "couldn't parse %s", file)
		}

		if c.Name == "" {
			c.Name = strings.TrimSuffix(filepath.Base(file), fileExt)
		}

		if err := c.compile(); err != nil {
			return nil, errors.Wrapf(err, "invalid static check %s", file)
		}

		if other, ok := names[c.Name]; ok {
			return nil, errors.Errorf("static check %q is defined in both %s and %s", c.Name, other, file)
		}
		names[c.Name] = file

		checks = append(checks, &c)
	}

	if checks == nil {
		return nil, errors.Errorf("no static checks found in %s", path)
	}

	return checks, nil
}

func (c *StaticCheck) compile() error {
	if c.File == "" {
		return errors.New("file is required")
	}
	if len(c.Patterns) == 0 {
		return errors.New("at least one pattern is required")
	}
	if c.MinMatches < 0 || c.MinMatches > len(c.Patterns) {
		return errors.Errorf("min_matches must be between 0 and %d", len(c.Patterns))
	}

	c.compiled = make([]*regexp.Regexp, len(c.Patterns))
	for i, p := range c.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return errors.Wrapf(err, "couldn't compile pattern %q", p)
		}
		c.compiled[i] = re
	}

	return nil
}

// Evaluate matches the patterns against content.
func (c *StaticCheck) Evaluate(content string) *expect.Score {
	score := expect.NewScore(c.MinMatches)
	for i, re := range c.compiled {
		score.Mark(c.Patterns[i], re.MatchString(content))
	}
	return score
}

func (s *suite) staticCheck(def *StaticCheck) *scanner.Check {
	name := StaticPatternPrefix + def.Name

	return scanner.NewCheck(name, func(ctx context.Context, env *scanner.Env) *db.Result {
		path := filepath.Join(s.Config.SourceRoot, filepath.FromSlash(def.File))

		content, err := os.ReadFile(path)
		if err != nil {
			return db.Fail(name, fmt.Sprintf("Source file %s not found", def.File), map[string]any{
				"file":  def.File,
				"error": err.Error(),
			})
		}

		score := def.Evaluate(string(content))
		details := score.Details()
		details["file"] = def.File

		if !score.Passed() {
			return db.Fail(name, fmt.Sprintf("Patterns found in %s: %s", def.File, score.Summary()), details)
		}

		return db.Pass(name, fmt.Sprintf("Patterns found in %s: %s", def.File, score.Summary()), details)
	})
}
