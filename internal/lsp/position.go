package lsp

import "go.lsp.dev/protocol"

// offsetFor maps an LSP line/character position to a rune offset in text,
// clamped into [0, len-1]. A character past the end of its line, or a line
// past the end of the document, degrades to the end of the document rather
// than failing; diagnostics from a server racing an edit are routinely
// slightly stale.
func offsetFor(text string, pos protocol.Position) int {
	runes := []rune(text)
	last := len(runes) - 1
	if last < 0 {
		return 0
	}

	lineStart := -1
	if pos.Line == 0 {
		lineStart = 0
	} else {
		var line uint32
		for i, r := range runes {
			if r == '\n' {
				line++
				if line == pos.Line {
					lineStart = i + 1
					break
				}
			}
		}
	}
	if lineStart < 0 || lineStart > last {
		return last
	}

	off := lineStart + int(pos.Character)
	if off > last {
		return last
	}
	return off
}

// buildHighlights converts a diagnostics batch into rendering directives
// against the given document text, one directive per diagnostic.
func buildHighlights(text string, diags []protocol.Diagnostic) []Highlight {
	batch := make([]Highlight, 0, len(diags))
	for _, d := range diags {
		start := offsetFor(text, d.Range.Start)
		end := offsetFor(text, d.Range.End)
		if end < start {
			end = start
		}
		batch = append(batch, Highlight{
			Start:     start,
			End:       end,
			Color:     SeverityColor(d.Severity),
			Underline: UnderlineSquiggly,
		})
	}
	return batch
}

// SeverityColor returns the render color for a diagnostic severity.
// Unknown severities render as errors, matching how servers omit the
// field for their most severe findings.
func SeverityColor(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityWarning:
		return "#cca700"
	case protocol.DiagnosticSeverityInformation:
		return "#3794ff"
	case protocol.DiagnosticSeverityHint:
		return "#8a8a8a"
	default:
		return "#f14c4c"
	}
}
