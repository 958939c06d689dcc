package validate

import (
	"encoding/json"
	"io"
)

// Categories lists every category in report order.
var Categories = []Category{CatIntegrityError, CatIntegrityWarn, CatAttachment, CatCondition}

func (c Category) label() string {
	switch c {
	case CatIntegrityError:
		return "Broken references"
	case CatIntegrityWarn:
		return "Suspicious references"
	case CatAttachment:
		return "Attachment anomalies"
	case CatCondition:
		return "Conditions that cannot evaluate"
	}
	return ""
}

// Report is what dbloader -report json writes.
type Report struct {
	TotalFindings int                    `json:"total_findings"`
	Errors        int                    `json:"errors"`
	Categories    map[string]CategorySum `json:"categories"`
	Findings      []Finding              `json:"findings"`
}

// CategorySum counts the findings of one category.
type CategorySum struct {
	Label   string `json:"label"`
	Total   int    `json:"total"`
	Fixable int    `json:"fixable"`
	Fixed   int    `json:"fixed"`
}

// GenerateReport snapshots v's findings. Categories with no findings are
// left out.
func GenerateReport(v *Validator) *Report {
	r := &Report{
		TotalFindings: len(v.findings),
		Errors:        v.Errors(),
		Categories:    map[string]CategorySum{},
		Findings:      v.findings,
	}
	for _, f := range v.findings {
		key := f.Category.String()
		sum, seen := r.Categories[key]
		if !seen {
			sum.Label = f.Category.label()
		}
		sum.Total++
		if f.Fixable {
			sum.Fixable++
		}
		if f.Fixed {
			sum.Fixed++
		}
		r.Categories[key] = sum
	}
	return r
}

// WriteJSON encodes r with two-space indentation.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
