// Package envconfig reads the per-environment yaml files of the test suite.
package envconfig

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultTimeout = 10

type Environment struct {
	Name    string `yaml:"-" json:"name"` // file stem, what runs reference
	EnvName string `yaml:"env_name" json:"env_name"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

type Loader struct {
	dir    string
	logger *zap.Logger
}

func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, logger: logger.Named("envconfig")}
}

// List returns every readable <name>.yaml in the config dir, sorted by name.
// A missing directory yields no environments.
func (l *Loader) List() ([]Environment, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var envs []Environment
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		env, err := l.load(strings.TrimSuffix(e.Name(), ".yaml"))
		if err != nil {
			l.logger.Warn("skip unreadable environment config", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		envs = append(envs, *env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}

// Get loads a single environment; ok is false when it has no config file.
func (l *Loader) Get(name string) (*Environment, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, false
	}
	env, err := l.load(name)
	if err != nil {
		return nil, false
	}
	return env, true
}

func (l *Loader) load(name string) (*Environment, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, name+".yaml"))
	if err != nil {
		return nil, err
	}
	env := Environment{}
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	env.Name = name
	if env.EnvName == "" {
		env.EnvName = name
	}
	if env.Timeout == 0 {
		env.Timeout = defaultTimeout
	}
	return &env, nil
}
