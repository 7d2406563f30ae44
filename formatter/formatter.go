// Package formatter implements spec §4.H: re-emitting a parsed TOSCA
// document in its canonical, conventionally-ordered form, the way a
// linter's --fix would — without touching the semantics a Parse call
// already validated.
package formatter

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Format re-emits a TOSCA Simple Profile YAML document with canonical
// section ordering and consistent indentation.
func Format(data []byte, indent int) ([]byte, error) {
	var root yaml.Node
	err := yaml.Unmarshal(data, &root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	formatNode(&root, true)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(indent)

	err = encoder.Encode(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	encoder.Close()

	result := cleanEmptyLines(buf.Bytes())

	return result, nil
}

// cleanEmptyLines removes trailing spaces from empty lines and removes leading empty lines
func cleanEmptyLines(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))

	for i, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 && len(line) > 0 {
			lines[i] = []byte{}
		}
	}

	start := 0
	for start < len(lines) && len(bytes.TrimSpace(lines[start])) == 0 {
		start++
	}
	if start > 0 {
		lines = lines[start:]
	}

	return bytes.Join(lines, []byte("\n"))
}

// formatNode recursively formats nodes in the YAML tree
func formatNode(node *yaml.Node, isRoot bool) {
	if node == nil {
		return
	}

	if node.Kind == yaml.MappingNode {
		sortMappingNode(node, isRoot)
	}

	if isRoot && node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		formatNode(node.Content[0], true)
		return
	}

	for _, child := range node.Content {
		formatNode(child, false)
	}
}

// sortMappingNode sorts keys in a mapping node according to the TOSCA
// document conventions of getKeyOrder, keeping commented blocks pinned to
// their original relative position rather than resorting through them.
func sortMappingNode(node *yaml.Node, isTopLevel bool) {
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return
	}

	type pair struct {
		key         *yaml.Node
		value       *yaml.Node
		order       int
		originalIdx int
		hasComment  bool
	}

	var pairs []pair

	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		hasComment := keyNode.HeadComment != "" || keyNode.LineComment != "" ||
			keyNode.FootComment != "" || valueNode.HeadComment != ""

		if isTopLevel && isTemplateSection(keyNode.Value) && valueNode.Kind == yaml.MappingNode {
			addEntrySpacing(valueNode)
		}

		pairs = append(pairs, pair{
			key:         keyNode,
			value:       valueNode,
			order:       getKeyOrder(keyNode.Value, isTopLevel),
			originalIdx: i,
			hasComment:  hasComment,
		})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].hasComment || pairs[j].hasComment {
			return pairs[i].originalIdx < pairs[j].originalIdx
		}
		if pairs[i].order != pairs[j].order {
			return pairs[i].order < pairs[j].order
		}
		return pairs[i].key.Value < pairs[j].key.Value
	})

	if isTopLevel {
		for i := 1; i < len(pairs); i++ {
			keyNode := pairs[i].key
			if keyNode.HeadComment == "" {
				keyNode.HeadComment = "\n"
			} else if keyNode.HeadComment[0] != '\n' {
				keyNode.HeadComment = "\n" + keyNode.HeadComment
			}
		}
	}

	newContent := make([]*yaml.Node, 0, len(node.Content))
	for _, p := range pairs {
		newContent = append(newContent, p.key, p.value)
	}
	node.Content = newContent
}

// isTemplateSection reports whether key holds a mapping of named entries
// (type or template definitions) that should get blank-line separation,
// the TOSCA analogue of docker-compose's services: block.
func isTemplateSection(key string) bool {
	switch key {
	case "node_types", "relationship_types", "capability_types", "data_types",
		"interface_types", "artifact_types", "policy_types", "group_types",
		"node_templates", "relationship_templates", "groups", "policies":
		return true
	}
	return false
}

// addEntrySpacing adds empty lines between named entries of a *_types or
// *_templates block.
func addEntrySpacing(section *yaml.Node) {
	if section.Kind != yaml.MappingNode || len(section.Content) == 0 {
		return
	}

	for i := 0; i < len(section.Content); i += 2 {
		keyNode := section.Content[i]
		if i > 0 {
			if keyNode.HeadComment != "" {
				if keyNode.HeadComment[0] != '\n' {
					keyNode.HeadComment = "\n" + keyNode.HeadComment
				}
			} else {
				keyNode.HeadComment = "\n"
			}
		}
	}
}

// getKeyOrder returns the sort order for TOSCA document keys. Lower
// numbers come first; unknown keys fall back to alphabetical order
// within their shared default bucket.
func getKeyOrder(key string, isTopLevel bool) int {
	topLevelOrder := map[string]int{
		"tosca_definitions_version": 1,
		"description":               2,
		"metadata":                  3,
		"imports":                   10,
		"dsl_definitions":           15,
		"repositories":              20,
		"data_types":                30,
		"artifact_types":            31,
		"interface_types":           32,
		"capability_types":          33,
		"requirement_types":         34,
		"relationship_types":        35,
		"node_types":                36,
		"group_types":               37,
		"policy_types":              38,
		"topology_template":         1000,
	}

	// Shared field order within a node_type/relationship_type/capability_type/etc. body.
	typeDefOrder := map[string]int{
		"derived_from": 1,
		"version":      2,
		"description":  3,
		"metadata":     4,
		"properties":   10,
		"attributes":   11,
		"capabilities": 20,
		"requirements": 30,
		"interfaces":   40,
		"artifacts":    50,
	}

	// topology_template's own body.
	templateOrder := map[string]int{
		"description":            1,
		"inputs":                 10,
		"node_templates":         20,
		"relationship_templates": 21,
		"groups":                 30,
		"policies":               40,
		"outputs":                50,
		"substitution_mappings":  60,
	}

	// node_templates.<name> body.
	nodeTemplateOrder := map[string]int{
		"type":        1,
		"description": 2,
		"metadata":    3,
		"directives":  4,
		"copy":        5,
		"properties":  10,
		"attributes":  11,
		"capabilities": 20,
		"requirements": 30,
		"interfaces":  40,
		"artifacts":   50,
		"node_filter": 60,
	}

	// requirement assignment / capability definition body.
	propertyLikeOrder := map[string]int{
		"type":               1,
		"capability":         2,
		"node":               3,
		"relationship":       4,
		"valid_source_types": 5,
		"occurrences":        6,
		"required":           7,
		"default":            8,
		"constraints":        9,
		"entry_schema":       10,
		"status":             11,
	}

	if isTopLevel {
		if order, ok := topLevelOrder[key]; ok {
			return order
		}
		return 1000
	}
	if order, ok := templateOrder[key]; ok {
		return order
	}
	if order, ok := nodeTemplateOrder[key]; ok {
		return order
	}
	if order, ok := typeDefOrder[key]; ok {
		return order
	}
	if order, ok := propertyLikeOrder[key]; ok {
		return order
	}
	return 500
}
