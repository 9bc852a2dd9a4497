package tooling

import (
	"time"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/opsmodel"
)

// Success builds a ToolResult{Success:true} carrying data and citations.
func Success(data any, citations []opsmodel.Citation) opsmodel.ToolResult {
	return opsmodel.ToolResult{
		Success:   true,
		Data:      data,
		Citations: citations,
		Metadata:  opsmodel.ToolMetadata{QueryTimestamp: time.Now().UTC()},
	}
}

// Failure builds a ToolResult{Success:false} from err, extracting a
// human-safe message. err is never attached directly so a tool never leaks
// an *errs.Error (or its cause chain) to a caller expecting plain text.
func Failure(err error) opsmodel.ToolResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return opsmodel.ToolResult{
		Success:      false,
		ErrorMessage: msg,
		Metadata:     opsmodel.ToolMetadata{QueryTimestamp: time.Now().UTC()},
	}
}

// NotFound builds the {found:false, suggestions} shape every lookup tool
// returns for an ambiguous or absent reference, per errs.KindAmbiguousReference.
func NotFound(suggestions []string) opsmodel.ToolResult {
	return opsmodel.ToolResult{
		Success: true,
		Data: map[string]any{
			"found":       false,
			"suggestions": suggestions,
		},
		Metadata: opsmodel.ToolMetadata{QueryTimestamp: time.Now().UTC()},
	}
}

// DatabaseCitation builds a Citation sourced from a specific store row.
func DatabaseCitation(table, recordID, assetID string, ts time.Time, excerpt string) opsmodel.Citation {
	t := ts
	return opsmodel.Citation{
		SourceType:  opsmodel.SourceDatabase,
		SourceTable: table,
		RecordID:    recordID,
		AssetID:     assetID,
		Timestamp:   &t,
		Excerpt:     excerpt,
		Confidence:  1.0,
		DisplayText: table + ":" + recordID,
	}
}

// CalculationCitation builds a Citation for a derived value (a trend
// classification, a variance computation) that has no single backing row.
func CalculationCitation(excerpt string, confidence float64) opsmodel.Citation {
	return opsmodel.Citation{
		SourceType:  opsmodel.SourceCalculation,
		Excerpt:     excerpt,
		Confidence:  confidence,
		DisplayText: "calculated",
	}
}

// WrapGatewayErr classifies a Gateway failure into the tool-facing error
// taxonomy, defaulting unclassified errors to KindQuery.
func WrapGatewayErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.KindOf(err), "gateway query failed", err)
}
