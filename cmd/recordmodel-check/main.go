// Command recordmodel-check validates a record model manifest: a JSON
// document listing the record types an application registers, with their
// wire keys, properties and validation dependencies. It reports duplicate
// properties and wire keys, references to undeclared dependencies, and
// identifier rule violations before they panic at type-compile time.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"recordcore/pkg/record"
)

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type manifest struct {
	Types []record.Descriptor `json:"types"`
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("recordmodel-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var manifestPath string
	fs.StringVar(&manifestPath, "manifest", "recordmodel.json", "path to record model manifest")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	findings, err := run(manifestPath)
	if err != nil {
		fmt.Fprintf(stderr, "record model check failed: %v\n", err)
		return 1
	}
	if len(findings) > 0 {
		for _, finding := range findings {
			fmt.Fprintln(stdout, finding)
		}
		fmt.Fprintf(stderr, "record model check failed: %d finding(s)\n", len(findings))
		return 1
	}
	fmt.Fprintln(stdout, "record model check passed")
	return 0
}

// validatePath keeps the manifest inside the working tree: no absolute paths
// and no traversal outside the current directory.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

// run loads the manifest and returns the semantic findings. I/O and parse
// problems come back as the error; an empty findings slice with a nil error
// means every declared type compiles.
func run(manifestPath string) ([]string, error) {
	safePath, err := validatePath(manifestPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Types) == 0 {
		return nil, fmt.Errorf("manifest declares no types")
	}

	var findings []string
	names := make(map[string]int, len(m.Types))
	for i, desc := range m.Types {
		label := desc.Name
		if label == "" {
			label = fmt.Sprintf("types[%d]", i)
		}
		if desc.Name != "" {
			if prev, dup := names[desc.Name]; dup {
				findings = append(findings, fmt.Sprintf("%s: declared twice (types[%d] and types[%d])", desc.Name, prev, i))
			} else {
				names[desc.Name] = i
			}
		}
		definition := desc.Definition()
		checked := definition.Check()
		for _, finding := range checked {
			findings = append(findings, fmt.Sprintf("%s: %s", label, finding))
		}
		if len(checked) == 0 {
			// Check passed, so compilation must succeed; a failure here is a
			// bug worth surfacing verbatim.
			if _, err := record.NewType(definition); err != nil {
				findings = append(findings, fmt.Sprintf("%s: %v", label, err))
			}
		}
	}
	return findings, nil
}
