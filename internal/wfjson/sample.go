package wfjson

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

// SampleDoc is the on-disk shape of a plugin sample-workflow fixture (§6
// "Sample workflows additionally carry metadata"). Authors write these by
// hand as YAML since the guide/steps/tags metadata is tedious to maintain in
// raw JSON.
type SampleDoc struct {
	Workflow map[string]any `yaml:"workflow"`
	Sample   SampleMetadata `yaml:"sample"`
}

// DecodeSampleYAML parses a YAML sample-workflow fixture into a domain
// Workflow, its node Positions and the attached SampleMetadata. The nested
// "workflow" section uses the same field names as the wire JSON shape
// (id/name/nodes/connections/settings); this re-marshals that section to
// JSON and routes it through Decode so both entry points share one parser
// rather than duplicating field-by-field conversion.
func DecodeSampleYAML(data []byte) (*domain.Workflow, Positions, *SampleMetadata, error) {
	var doc SampleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("decode sample workflow yaml: %w", err)
	}
	if doc.Workflow == nil {
		return nil, nil, nil, fmt.Errorf("decode sample workflow yaml: missing %q document", "workflow")
	}

	jsonBytes, err := json.Marshal(doc.Workflow)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode sample workflow yaml: %w", err)
	}

	wf, positions, err := Decode(jsonBytes)
	if err != nil {
		return nil, nil, nil, err
	}

	sample := doc.Sample
	return wf, positions, &sample, nil
}
