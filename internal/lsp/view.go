package lsp

// View is the editor-pane collaborator a session renders into. It is
// implemented by the GUI layer; this package only reads document text,
// observes edits, and hands over highlight batches.
type View interface {
	// Text returns the current full plain-text content of the document.
	Text() string

	// OnChange registers a callback invoked after every edit. Callbacks
	// for one document are delivered serially.
	OnChange(fn func())

	// ApplyHighlights replaces the previous diagnostic rendering with the
	// given batch. Called on the UI thread.
	ApplyHighlights(batch []Highlight)

	// ClearHighlights removes all diagnostic rendering. Called on the UI
	// thread.
	ClearHighlights()
}

// UnderlineStyle selects how a highlight range is underlined.
type UnderlineStyle int

const (
	UnderlineSquiggly UnderlineStyle = iota
	UnderlineStraight
	UnderlineNone
)

// Highlight is one rendering directive for a diagnostic: a document offset
// range plus severity-keyed presentation.
type Highlight struct {
	Start     int
	End       int
	Color     string
	Underline UnderlineStyle
}
