package codec

import "github.com/brooklang/brook/engine"

// FrameReport is one traceback entry in wire form.
type FrameReport struct {
	Filename      string `json:"filename"`
	StartLine     int    `json:"start_line"`
	StartColumn   int    `json:"start_column"`
	EndLine       int    `json:"end_line"`
	EndColumn     int    `json:"end_column"`
	FrameName     string `json:"frame_name,omitempty"`
	PreviewLine   string `json:"preview_line,omitempty"`
	HideCaret     bool   `json:"hide_caret,omitempty"`
	HideFrameName bool   `json:"hide_frame_name,omitempty"`
}

// ExceptionReport is the wire form of a script exception. The top-level
// location fields duplicate the innermost traceback frame for consumers
// that only want the raise site.
type ExceptionReport struct {
	Message      string        `json:"message"`
	ExcType      string        `json:"exc_type"`
	Filename     string        `json:"filename"`
	LineNumber   int           `json:"line_number"`
	ColumnNumber int           `json:"column_number"`
	SourceCode   string        `json:"source_code,omitempty"`
	Traceback    []FrameReport `json:"traceback"`
}

// ReportException converts an engine exception into its wire form.
// Message carries the one-line summary with the kind prefix; traceback
// frames stay ordered outermost first.
func ReportException(exc *engine.Exception) *ExceptionReport {
	rep := &ExceptionReport{
		Message: exc.Summary(),
		ExcType: string(exc.Kind),
	}
	rep.Traceback = make([]FrameReport, len(exc.Frames))
	for i, f := range exc.Frames {
		rep.Traceback[i] = FrameReport{
			Filename:      f.Filename,
			StartLine:     f.StartLine,
			StartColumn:   f.StartColumn,
			EndLine:       f.EndLine,
			EndColumn:     f.EndColumn,
			FrameName:     f.FrameName,
			PreviewLine:   f.PreviewLine,
			HideCaret:     f.HideCaret,
			HideFrameName: f.HideFrame,
		}
	}
	if site := exc.Site(); site != nil {
		rep.Filename = site.Filename
		rep.LineNumber = site.StartLine
		rep.ColumnNumber = site.StartColumn
		rep.SourceCode = site.PreviewLine
	}
	return rep
}
