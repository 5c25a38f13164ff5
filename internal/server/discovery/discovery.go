// Package discovery scans the suite checkout for test files and their tags.
package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// PredefinedTags are the tags offered as ready-made suites.
var PredefinedTags = []string{"smoke", "regression"}

var (
	tagsLine    = regexp.MustCompile(`(?i)^\s*\[\s*tags\s*\]`)
	settingTags = regexp.MustCompile(`(?i)^(force|test|default)\s+tags(\s{2,}|\t|$)`)
	continued   = regexp.MustCompile(`^\s*\.\.\.`)
	cellSep     = regexp.MustCompile(`\s{2,}|\t`)
)

type Result struct {
	Suites        map[string][]string `json:"suites"` // predefined tag -> files
	Tags          map[string][]string `json:"tags"`   // every tag -> files
	RobotFiles    []string            `json:"robot_files"`
	ResourceFiles []string            `json:"resource_files"`
}

type Catalog struct {
	testsDir     string
	resourcesDir string
}

func NewCatalog(testsDir, resourcesDir string) *Catalog {
	return &Catalog{testsDir: testsDir, resourcesDir: resourcesDir}
}

func (c *Catalog) Discover() (*Result, error) {
	res := &Result{
		Suites:        map[string][]string{},
		Tags:          map[string][]string{},
		RobotFiles:    []string{},
		ResourceFiles: []string{},
	}
	for _, t := range PredefinedTags {
		res.Suites[t] = []string{}
	}

	robots, err := listFiles(c.testsDir, ".robot")
	if err != nil {
		return nil, err
	}
	for _, name := range robots {
		tags, err := tagsInFile(filepath.Join(c.testsDir, name))
		if err != nil {
			continue
		}
		res.RobotFiles = append(res.RobotFiles, name)
		for _, tag := range tags {
			res.Tags[tag] = append(res.Tags[tag], name)
			if _, ok := res.Suites[tag]; ok {
				res.Suites[tag] = append(res.Suites[tag], name)
			}
		}
	}

	res.ResourceFiles, err = listFiles(c.resourcesDir, ".resource")
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Save stores an uploaded .robot or .resource file in the matching directory.
func (c *Catalog) Save(name string, r io.Reader) (string, error) {
	name = filepath.Base(name)
	var dir string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".robot":
		dir = c.testsDir
	case ".resource":
		dir = c.resourcesDir
	default:
		return "", fmt.Errorf("unsupported test file %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	return dst, f.Close()
}

func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// tagsInFile collects [Tags] and Test/Force/Default Tags settings, lowercased.
func tagsInFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := map[string]bool{}
	add := func(cells string) {
		for _, tag := range cellSep.Split(cells, -1) {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				seen[tag] = true
			}
		}
	}

	inTags := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		switch {
		case tagsLine.MatchString(line):
			inTags = true
			add(tagsLine.ReplaceAllString(line, ""))
		case settingTags.MatchString(line):
			inTags = true
			add(settingTags.ReplaceAllString(line, ""))
		case inTags && continued.MatchString(line):
			add(continued.ReplaceAllString(line, ""))
		default:
			inTags = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}
