package sop

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/triagewatch/internal/model"
)

// LoadReport summarizes one procedure file load.
type LoadReport struct {
	Path    string
	Loaded  int
	Skipped []error
}

// procedureFile is the on-disk layout:
//
//	procedures:
//	  - id: SOP-001
//	    title: Active Shooter Response
//	    ...
//
// A bare top-level list is accepted too. JSON files parse as YAML.
type procedureFile struct {
	Procedures []yaml.Node `yaml:"procedures"`
}

// ParseProcedures decodes procedure records from YAML or JSON bytes.
// Records that fail to decode or validate are returned in skipped.
func ParseProcedures(data []byte) (records []model.ProcedureRecord, skipped []error, err error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("failed to parse procedures: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil, nil
	}

	var nodes []yaml.Node
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		for _, n := range doc.Content {
			nodes = append(nodes, *n)
		}
	case yaml.MappingNode:
		var f procedureFile
		if err := doc.Decode(&f); err != nil {
			return nil, nil, fmt.Errorf("failed to parse procedures: %w", err)
		}
		nodes = f.Procedures
	default:
		return nil, nil, fmt.Errorf("failed to parse procedures: unexpected document kind")
	}

	for i := range nodes {
		var rec model.ProcedureRecord
		if err := nodes[i].Decode(&rec); err != nil {
			skipped = append(skipped, &model.MalformedProcedureError{
				Reason: fmt.Sprintf("record %d at line %d: %v", i, nodes[i].Line, err),
			})
			continue
		}
		rec = rec.Indexed()
		if err := rec.Validate(); err != nil {
			skipped = append(skipped, err)
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// LoadFile reads a procedure file. Malformed records are logged and
// skipped; an unreadable or unparsable file is an error.
func LoadFile(path string, logger *zap.Logger) ([]model.ProcedureRecord, LoadReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	report := LoadReport{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, report, fmt.Errorf("failed to read procedures %s: %w", path, err)
	}
	records, skipped, err := ParseProcedures(data)
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range skipped {
		logger.Warn("skipping malformed procedure", zap.String("path", path), zap.Error(e))
	}
	report.Loaded = len(records)
	report.Skipped = skipped
	return records, report, nil
}

// Load reads path and replaces the library contents on success.
// On failure the previous snapshot stays in place.
func (l *Library) Load(path string, logger *zap.Logger) (LoadReport, error) {
	records, report, err := LoadFile(path, logger)
	if err != nil {
		return report, err
	}
	l.Replace(records)
	return report, nil
}
