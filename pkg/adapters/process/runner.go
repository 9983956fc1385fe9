package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/ports"
)

// StylesheetPlaceholder is replaced in processor arguments by the stylesheet path.
const StylesheetPlaceholder = "{stylesheet}"

// Applier implements ports.StylesheetApplier by running a local processor
// (xsltproc by default). The input document is written to the process stdin
// and its stdout is the result.
// It follows a Strict Registry pattern: only registered commands run.
type Applier struct {
	registry map[string]RegisteredProcess
	byExt    map[string]string
	fallback string
	baseDir  string
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string // Template args, see StylesheetPlaceholder
	Env     []string
}

// ApplierOption configures the applier.
type ApplierOption func(*Applier)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(procs map[string]ProcessConfig) ApplierOption {
	return func(a *Applier) {
		names := make([]string, 0, len(procs))
		for name := range procs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := procs[name]
			a.Register(name, p.Command, p.Args...)
			proc := a.registry[name]
			for k, v := range p.Environment {
				proc.Env = append(proc.Env, k+"="+v)
			}
			a.registry[name] = proc
			for _, ext := range p.Extensions {
				a.byExt[strings.ToLower(ext)] = name
			}
		}
	}
}

// WithDefault selects the processor used when no extension matches.
func WithDefault(name string) ApplierOption {
	return func(a *Applier) {
		a.fallback = name
	}
}

// WithBaseDir sets the directory stylesheet hrefs are resolved against.
func WithBaseDir(dir string) ApplierOption {
	return func(a *Applier) {
		a.baseDir = dir
	}
}

// NewApplier creates an Applier with xsltproc registered as the default.
func NewApplier(opts ...ApplierOption) *Applier {
	a := &Applier{
		registry: make(map[string]RegisteredProcess),
		byExt:    make(map[string]string),
		fallback: "xsltproc",
	}
	a.Register("xsltproc", "xsltproc", StylesheetPlaceholder, "-")
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a trusted command to the allow-list.
func (a *Applier) Register(name string, command string, args ...string) {
	a.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

var _ ports.StylesheetApplier = (*Applier)(nil)

// Apply runs the processor selected for href over input.
func (a *Applier) Apply(ctx context.Context, href string, input *etree.Element) (string, error) {
	name := a.fallback
	if n, ok := a.byExt[strings.ToLower(filepath.Ext(href))]; ok {
		name = n
	}
	proc, ok := a.registry[name]
	if !ok {
		return "", fmt.Errorf("stylesheet processor not registered: %s", name)
	}

	stylesheet := href
	if a.baseDir != "" && !filepath.IsAbs(href) && !strings.Contains(href, "://") {
		stylesheet = filepath.Join(a.baseDir, filepath.FromSlash(href))
	}

	args := make([]string, len(proc.Args))
	for i, arg := range proc.Args {
		args[i] = strings.ReplaceAll(arg, StylesheetPlaceholder, stylesheet)
	}

	doc := etree.NewDocument()
	doc.SetRoot(input.Copy())
	var stdin bytes.Buffer
	if _, err := doc.WriteTo(&stdin); err != nil {
		return "", fmt.Errorf("failed to serialize input: %w", err)
	}

	cmd := exec.CommandContext(ctx, proc.Command, args...)
	cmd.Dir = a.baseDir
	cmd.Env = append(cmd.Environ(), proc.Env...)
	cmd.Env = append(cmd.Env, "XRLT_STYLESHEET="+stylesheet)
	cmd.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
