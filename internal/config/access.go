package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation
// path such as "api.listen" or "commands_2.0". Numeric segments index into
// lists. A path of the form "list:N" addresses command list N (1-4).
func (c *Config) GetPath(path string) (any, error) {
	if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// GetEntity resolves a type:name address. The only entity type is "list".
func (c *Config) GetEntity(address string) (any, error) {
	parts := strings.SplitN(address, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	entityType, name := parts[0], parts[1]

	switch entityType {
	case "list":
		lists := c.CommandLists()
		if name == "*" {
			return lists, nil
		}
		n, err := strconv.Atoi(name)
		if err != nil || n < 1 || n > len(lists) {
			return nil, fmt.Errorf("command list %q not found (expected 1-%d)", name, len(lists))
		}
		return lists[n-1], nil
	default:
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		switch node := current.(type) {
		case map[string]any:
			val, exists := node[part]
			if !exists {
				return nil, fmt.Errorf("path %q: key %q not found", path, part)
			}
			current = val
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("path %q: %q is not a list index", path, part)
			}
			if i < 0 || i >= len(node) {
				return nil, fmt.Errorf("path %q: index %d out of range (len %d)", path, i, len(node))
			}
			current = node[i]
		default:
			return nil, fmt.Errorf("path %q breaks at %q (not a map or list)", path, part)
		}
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	parts := strings.Split(path, ".")
	current := node

	for _, part := range parts {
		switch current.Kind {
		case yaml.MappingNode:
			found := false
			for i := 0; i < len(current.Content); i += 2 {
				if current.Content[i].Value == part {
					current = current.Content[i+1]
					found = true
					break
				}
			}
			if found {
				continue
			}
			if !create {
				return nil, fmt.Errorf("key %q not found", part)
			}
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			// Overwritten by the value when this is the last segment.
			valueNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content, keyNode, valueNode)
			current = valueNode

		case yaml.SequenceNode:
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%q is not a list index", part)
			}
			switch {
			case i >= 0 && i < len(current.Content):
				current = current.Content[i]
			case create && i == len(current.Content):
				valueNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str"}
				current.Content = append(current.Content, valueNode)
				current = valueNode
			default:
				return nil, fmt.Errorf("index %d out of range (len %d)", i, len(current.Content))
			}

		default:
			return nil, fmt.Errorf("%q: not a mapping or list", part)
		}
	}

	return current, nil
}

// SetPath changes the value at path in the file the config was loaded from.
// A numeric segment equal to a list's length appends to it. The edited
// document must still parse and validate; when persist is true it is then
// written back and c is left untouched.
func (c *Config) SetPath(path, value string, persist bool) error {
	if c.SourcePath == "" {
		return fmt.Errorf("no configuration source file")
	}

	original, err := os.ReadFile(c.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("%s is not a YAML document", c.SourcePath)
	}

	target, err := findNode(root.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	if _, err := Parse(candidate); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !persist {
		return nil
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(c.SourcePath); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(c.SourcePath, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}
	return nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	if _, err := strconv.Atoi(v); err == nil {
		return "!!int"
	}
	return "!!str"
}
