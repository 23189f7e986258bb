package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ShapeKind tags how a grammar response was laid out.
type ShapeKind int

const (
	ShapeUnrecognized ShapeKind = iota
	ShapeArray
	ShapeWrapped
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeArray:
		return "array"
	case ShapeWrapped:
		return "wrapped"
	default:
		return "unrecognized"
	}
}

// Shape is the decoded grammar response. Segments is nil unless Kind is
// ShapeArray or ShapeWrapped.
type Shape struct {
	Kind     ShapeKind
	Segments []Segment
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeShape accepts a bare segment array or an object with a "segments"
// array. Anything else is ShapeUnrecognized.
func DecodeShape(raw string) Shape {
	body := []byte(StripFences(raw))
	if len(body) == 0 {
		return Shape{Kind: ShapeUnrecognized}
	}

	switch body[0] {
	case '[':
		var segs []Segment
		if err := json.Unmarshal(body, &segs); err != nil {
			return Shape{Kind: ShapeUnrecognized}
		}
		return Shape{Kind: ShapeArray, Segments: segs}
	case '{':
		var wrapped struct {
			Segments *[]Segment `json:"segments"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Segments == nil {
			return Shape{Kind: ShapeUnrecognized}
		}
		return Shape{Kind: ShapeWrapped, Segments: *wrapped.Segments}
	default:
		return Shape{Kind: ShapeUnrecognized}
	}
}

// AlignSegments repairs model segments so that their Text values concatenate
// to input exactly. Text the model skipped becomes ok segments. If a segment
// cannot be located in order, the whole input is returned as one ok segment.
func AlignSegments(input string, segs []Segment) []Segment {
	if input == "" {
		return []Segment{}
	}

	out := make([]Segment, 0, len(segs))
	cursor := 0
	for _, s := range segs {
		if s.Text == "" {
			// An empty span with a correction is an insertion at the cursor.
			if s.Type == SegmentCorrection && strings.TrimSpace(s.Correction) != "" {
				out = append(out, cleanSegment(s))
			}
			continue
		}
		idx := strings.Index(input[cursor:], s.Text)
		if idx < 0 {
			return []Segment{{Type: SegmentOK, Text: input}}
		}
		if idx > 0 {
			out = appendOK(out, input[cursor:cursor+idx])
		}
		out = append(out, cleanSegment(s))
		cursor += idx + len(s.Text)
	}
	if cursor < len(input) {
		out = appendOK(out, input[cursor:])
	}
	return out
}

func appendOK(out []Segment, text string) []Segment {
	if n := len(out); n > 0 && out[n-1].Type == SegmentOK {
		out[n-1].Text += text
		return out
	}
	return append(out, Segment{Type: SegmentOK, Text: text})
}

// cleanSegment downgrades corrections that do not change anything.
func cleanSegment(s Segment) Segment {
	if s.Type == SegmentCorrection && s.Correction != "" && s.Correction != s.Text {
		return Segment{Type: SegmentCorrection, Text: s.Text, Correction: s.Correction, Explanation: strings.TrimSpace(s.Explanation)}
	}
	return Segment{Type: SegmentOK, Text: s.Text}
}

// NormalizeGrammar decodes and aligns a grammar response. It never fails: an
// unusable response yields an empty list.
func NormalizeGrammar(input, raw string) ([]Segment, ShapeKind) {
	shape := DecodeShape(raw)
	if shape.Kind == ShapeUnrecognized {
		return []Segment{}, shape.Kind
	}
	return AlignSegments(input, shape.Segments), shape.Kind
}

var errMalformed = errors.New("malformed model response")

func decodeObject(raw string, out any) error {
	body := []byte(StripFences(raw))
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// NormalizeReport decodes and validates a Task 1 prompt.
func NormalizeReport(raw, wantChart string) (*ReportPrompt, error) {
	var p ReportPrompt
	if err := decodeObject(raw, &p); err != nil {
		return nil, err
	}

	p.ChartType = strings.ToLower(strings.TrimSpace(p.ChartType))
	if p.ChartType == "" {
		p.ChartType = wantChart
	}
	switch {
	case !slices.Contains(ChartTypes, p.ChartType):
		return nil, fmt.Errorf("%w: unknown chart type %q", errMalformed, p.ChartType)
	case strings.TrimSpace(p.Instruction) == "":
		return nil, fmt.Errorf("%w: missing instruction", errMalformed)
	case p.XAxisKey == "":
		return nil, fmt.Errorf("%w: missing x axis key", errMalformed)
	case len(p.SeriesKeys) == 0:
		return nil, fmt.Errorf("%w: missing data keys", errMalformed)
	case len(p.Data) < minReportRows || len(p.Data) > maxReportRows:
		return nil, fmt.Errorf("%w: %d data rows, want %d-%d", errMalformed, len(p.Data), minReportRows, maxReportRows)
	}
	for i, row := range p.Data {
		if _, ok := row[p.XAxisKey]; !ok {
			return nil, fmt.Errorf("%w: row %d lacks %q", errMalformed, i, p.XAxisKey)
		}
		for _, k := range p.SeriesKeys {
			if _, ok := row[k].(float64); !ok {
				return nil, fmt.Errorf("%w: row %d has no numeric %q", errMalformed, i, k)
			}
		}
	}
	return &p, nil
}

// NormalizeEssay decodes a Task 2 prompt.
func NormalizeEssay(raw string) (*EssayPrompt, error) {
	var p EssayPrompt
	if err := decodeObject(raw, &p); err != nil {
		return nil, err
	}
	p.Topic = strings.TrimSpace(p.Topic)
	p.Question = strings.TrimSpace(p.Question)
	if p.Question == "" {
		return nil, fmt.Errorf("%w: missing question", errMalformed)
	}
	return &p, nil
}

// NormalizeFeedback decodes an evaluation and snaps the band to the scale.
func NormalizeFeedback(raw string) (*Feedback, error) {
	var f Feedback
	if err := decodeObject(raw, &f); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Summary) == "" {
		return nil, fmt.Errorf("%w: missing summary", errMalformed)
	}
	f.Band = SnapBand(f.Band)
	if f.Strengths == nil {
		f.Strengths = []string{}
	}
	if f.Improvements == nil {
		f.Improvements = []string{}
	}
	return &f, nil
}

// SnapBand clamps to 0-9 and rounds to the nearest half band.
func SnapBand(b float64) float64 {
	if math.IsNaN(b) || b < 0 {
		return 0
	}
	if b > 9 {
		return 9
	}
	return math.Round(b*2) / 2
}
