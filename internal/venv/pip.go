package venv

import (
	"context"
	"fmt"
	"os"
	"regexp"
)

// PipArgs builds the argument list for a single `pip install` invocation.
// The zero value is ready to use.
type PipArgs struct {
	args []string
}

// WithPackage adds a named package, optionally pinned (version may carry its
// own specifier prefix, otherwise `==` is assumed).
func (p PipArgs) WithPackage(name, version string) PipArgs {
	if version == "" {
		p.args = append(p.args, name)
		return p
	}
	if !hasSpecifier(version) {
		version = "==" + version
	}
	p.args = append(p.args, name+version)
	return p
}

func hasSpecifier(v string) bool {
	switch v[0] {
	case '=', '>', '<', '~', '!':
		return true
	}
	return false
}

// WithExtraIndex adds an additional package-index URL.
func (p PipArgs) WithExtraIndex(url string) PipArgs {
	p.args = append(p.args, "--extra-index-url", url)
	return p
}

// WithIndex replaces the primary package index.
func (p PipArgs) WithIndex(url string) PipArgs {
	p.args = append(p.args, "--index-url", url)
	return p
}

// WithRequirementsContent parses a requirements document (see
// ParseRequirements) into individual install arguments, filtered by exclude.
func (p PipArgs) WithRequirementsContent(content string, exclude *regexp.Regexp) PipArgs {
	p.args = append(p.args, ParseRequirements(content, exclude)...)
	return p
}

// WithRequirementsFile reads path and applies WithRequirementsContent.
func (p PipArgs) WithRequirementsFile(path string, exclude *regexp.Regexp) (PipArgs, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read requirements: %w", err)
	}
	return p.WithRequirementsContent(string(b), exclude), nil
}

// Args returns the final argument list after "pip install".
func (p PipArgs) Args() []string {
	return append([]string(nil), p.args...)
}

// Empty reports whether no install targets or flags were added.
func (p PipArgs) Empty() bool { return len(p.args) == 0 }

// PipInstall runs `python -m pip install` inside the environment, streaming
// output lines to onLine.
func (e *Env) PipInstall(ctx context.Context, args PipArgs, onLine func(string)) error {
	if args.Empty() {
		return nil
	}
	argv := append([]string{"-m", "pip", "install"}, args.Args()...)
	code, err := e.mgr.runner.RunStreaming(ctx, e.cmd(argv), onLine)
	if err != nil {
		return fmt.Errorf("pip install in %s: %w", e.Root, err)
	}
	if code != 0 {
		return fmt.Errorf("pip install in %s: exit code %d", e.Root, code)
	}
	return nil
}
