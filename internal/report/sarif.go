package report

import (
	"encoding/json"
	"io"

	"github.com/JNZader/kirolint/internal/rules"
)

// Version is stamped into SARIF output. The CLI overrides it at startup.
var Version = "dev"

// SARIFWriter generates SARIF 2.1.0 reports.
type SARIFWriter struct{}

func (w *SARIFWriter) Format() string    { return "sarif" }
func (w *SARIFWriter) Extension() string { return "sarif" }

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description sarifMessage `json:"shortDescription"`
	Properties  struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	} `json:"properties"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation struct {
		ArtifactLocation struct {
			URI string `json:"uri"`
		} `json:"artifactLocation"`
		Region *sarifRegion `json:"region,omitempty"`
	} `json:"physicalLocation"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

func (w *SARIFWriter) Write(report *Report, out io.Writer) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(w.build(report))
}

func (w *SARIFWriter) build(report *Report) *sarifReport {
	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:    "kirolint",
			Version: Version,
		}},
		Results: []sarifResult{},
	}

	ruleIndex := make(map[string]int)
	for _, f := range report.RuleEngine.Findings {
		idx, ok := ruleIndex[f.RuleName]
		if !ok {
			idx = len(run.Tool.Driver.Rules)
			ruleIndex[f.RuleName] = idx
			rule := sarifRule{ID: f.RuleName, Name: f.RuleName, Description: sarifMessage{Text: f.Description}}
			rule.Properties.Category = string(f.Category)
			rule.Properties.Severity = string(f.Severity)
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, rule)
		}

		res := sarifResult{
			RuleID:    f.RuleName,
			RuleIndex: idx,
			Level:     sarifLevel(f.Severity),
			Message:   sarifMessage{Text: f.Message},
		}
		loc := sarifLocation{}
		loc.PhysicalLocation.ArtifactLocation.URI = f.File
		if f.Line > 0 {
			loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.Line, StartColumn: f.Column}
		}
		res.Locations = append(res.Locations, loc)
		run.Results = append(run.Results, res)
	}

	return &sarifReport{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
}

func sarifLevel(s rules.Severity) string {
	switch s {
	case rules.SeverityCritical, rules.SeverityHigh:
		return "error"
	case rules.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
