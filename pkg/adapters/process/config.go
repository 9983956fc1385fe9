package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ProcessConfig describes an external stylesheet processor.
// Extensions select it for stylesheets whose href ends with one of them.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Extensions  []string          `yaml:"extensions" json:"extensions"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of a processors file.
type ConfigFile struct {
	Processors []ProcessConfig `yaml:"processors" json:"processors"`
}

// LoadProcessors reads a processors file (JSON when the extension is .json,
// YAML otherwise) and returns the processors by name, with extensions
// normalized to lower case. A missing file yields no processors. Unknown
// keys, unnamed processors, duplicate names and extensions claimed by more
// than one processor are rejected.
func LoadProcessors(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read processors config: %w", err)
	}

	cfg, err := decodeProcessors(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	procs, err := cfg.index()
	if err != nil {
		return nil, fmt.Errorf("invalid processors in %s: %w", filepath.Base(path), err)
	}
	return procs, nil
}

func decodeProcessors(data []byte, isJSON bool) (ConfigFile, error) {
	var cfg ConfigFile
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, err
		}
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	return cfg, nil
}

// index validates every processor and keys them by name.
func (c ConfigFile) index() (map[string]ProcessConfig, error) {
	procs := make(map[string]ProcessConfig, len(c.Processors))
	owners := make(map[string]string)
	var errs []error

	for i, p := range c.Processors {
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("processor %s: name is required", label))
		}
		if strings.TrimSpace(p.Command) == "" {
			errs = append(errs, fmt.Errorf("processor %s: command is required", label))
		}
		if _, dup := procs[p.Name]; dup && p.Name != "" {
			errs = append(errs, fmt.Errorf("processor %s: defined twice", label))
		}
		for k := range p.Environment {
			if k == "" || strings.Contains(k, "=") {
				errs = append(errs, fmt.Errorf("processor %s: invalid env name %q", label, k))
			}
		}

		exts := make([]string, 0, len(p.Extensions))
		for _, raw := range p.Extensions {
			ext := strings.ToLower(strings.TrimSpace(raw))
			switch {
			case len(ext) < 2 || ext[0] != '.' || strings.ContainsAny(ext[1:], "./\\"):
				errs = append(errs, fmt.Errorf("processor %s: extension %q must look like .xsl", label, raw))
				continue
			case owners[ext] != "":
				errs = append(errs, fmt.Errorf("processor %s: extension %s already handled by %s", label, ext, owners[ext]))
				continue
			}
			owners[ext] = label
			exts = append(exts, ext)
		}
		p.Extensions = exts

		if p.Name != "" {
			procs[p.Name] = p
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return procs, nil
}
