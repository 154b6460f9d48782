package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// resolveTags walks a parsed YAML document and substitutes the three
// custom tags query_exporter's yaml.py registers as constructors:
//
//	!env NAME       -> the value of environment variable NAME
//	!file PATH      -> the trimmed contents of the file at PATH
//	!include PATH   -> the parsed YAML document at PATH, spliced in place
//
// PATH is resolved relative to baseDir, the directory of the file the tag
// appears in, so included/file-referenced paths are portable across
// working directories.
func resolveTags(node *yaml.Node, baseDir string) error {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode, yaml.MappingNode:
		for _, child := range node.Content {
			if err := resolveTags(child, baseDir); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		switch node.Tag {
		case "!env":
			val, ok := os.LookupEnv(node.Value)
			if !ok {
				return fmt.Errorf("!env %s: environment variable not set", node.Value)
			}
			// Re-parsed as YAML (so e.g. "!env PORT" with PORT=5432 yields
			// an int, not the string "5432"), mirroring query_exporter's
			// yaml.py resolving !env through a fresh yaml.safe_load.
			var parsed yaml.Node
			if err := yaml.Unmarshal([]byte(val), &parsed); err != nil || len(parsed.Content) == 0 {
				node.Value = val
				node.Tag = "!!str"
				return nil
			}
			*node = *parsed.Content[0]
			return nil
		case "!file":
			path := resolvePath(baseDir, node.Value)
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("!file %s: %w", node.Value, err)
			}
			node.Value = trimTrailingNewline(string(data))
			node.Tag = "!!str"
			return nil
		case "!include":
			path := resolvePath(baseDir, node.Value)
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("!include %s: %w", node.Value, err)
			}
			var included yaml.Node
			if err := yaml.Unmarshal(data, &included); err != nil {
				return fmt.Errorf("!include %s: %w", node.Value, err)
			}
			if len(included.Content) == 0 {
				return fmt.Errorf("!include %s: empty document", node.Value)
			}
			if err := resolveTags(&included, filepath.Dir(path)); err != nil {
				return err
			}
			*node = *included.Content[0]
			return nil
		}
		return nil
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
