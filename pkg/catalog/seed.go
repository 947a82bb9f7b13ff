package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

//go:embed builtin.hcl
var builtinSeed []byte

// seedRoot decodes the top-level blocks of a seed file.
type seedRoot struct {
	Nodes []*seedNode `hcl:"node,block"`
}

type seedNode struct {
	Name    string   `hcl:"name,label"`
	Inputs  []string `hcl:"inputs,optional"`
	Outputs []string `hcl:"outputs,optional"`
	Script  string   `hcl:"script,optional"`
}

// Builtins returns the internal definitions every catalog carries.
func Builtins() ([]Draft, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(builtinSeed, "builtin.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse builtin seed: %w", diags)
	}
	return decodeSeed(file, "builtin.hcl")
}

// LoadSeed reads node blocks from the given .hcl files or directories.
// Missing paths are skipped.
func LoadSeed(paths ...string) ([]Draft, error) {
	files, err := findSeedFiles(paths)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	var drafts []Draft
	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse seed file %s: %w", path, diags)
		}
		decoded, err := decodeSeed(file, path)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, decoded...)
	}
	return drafts, nil
}

func decodeSeed(file *hcl.File, name string) ([]Draft, error) {
	var root seedRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", name, diags)
	}

	drafts := make([]Draft, 0, len(root.Nodes))
	seen := make(map[string]struct{}, len(root.Nodes))
	for _, n := range root.Nodes {
		if _, dup := seen[n.Name]; dup {
			return nil, fmt.Errorf("seed file %s: node %q declared twice", name, n.Name)
		}
		seen[n.Name] = struct{}{}

		d := Draft{
			Name:    n.Name,
			Script:  n.Script,
			Inputs:  clonePorts(n.Inputs),
			Outputs: clonePorts(n.Outputs),
		}
		if err := ValidateDraft(d); err != nil {
			return nil, fmt.Errorf("seed file %s: node %q: %w", name, n.Name, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func findSeedFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing seed path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
