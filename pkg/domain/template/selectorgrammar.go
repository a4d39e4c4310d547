package template

import (
	"fmt"
	"strings"
)

// AttributeSelector is a single AND-group of ABIS (attribute-based
// instance-selection) criteria, e.g. "vcpus:2-8,arch:arm64". Multiple
// terms separated by ";" are OR'd together.
//
// Grammar: semicolon-separated OR terms, each a comma-separated set of
// key:value AND criteria (vcpus:2-8,arch:arm64;vcpus:16-,arch:x86_64).
// ABIS requirements don't have a "tag" special-case so every key is a
// plain criterion.
type AttributeSelector struct {
	KeyVals map[string]string
}

// ParseAttributeSelectors parses a template's raw ABIS requirement
// string into AND/OR'd selector terms.
func ParseAttributeSelectors(raw string) ([]AttributeSelector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	terms := strings.Split(raw, ";")
	selectors := make([]AttributeSelector, 0, len(terms))
	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		sel := AttributeSelector{KeyVals: map[string]string{}}
		for _, c := range strings.Split(term, ",") {
			key, value, found := strings.Cut(c, ":")
			if !found {
				return nil, fmt.Errorf("invalid ABIS selector criterion: %q", c)
			}
			sel.KeyVals[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}
