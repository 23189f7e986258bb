package ai

// Chart types a report prompt can use.
const (
	ChartBar   = "bar"
	ChartLine  = "line"
	ChartPie   = "pie"
	ChartTable = "table"
)

var ChartTypes = []string{ChartBar, ChartLine, ChartPie, ChartTable}

const (
	minReportRows = 5
	maxReportRows = 8
)

// ReportPrompt is a generated Task 1 prompt with the data to chart.
type ReportPrompt struct {
	Title       string           `json:"title"`
	Instruction string           `json:"instruction"`
	ChartType   string           `json:"chartType"`
	XAxisKey    string           `json:"xAxisKey"`
	SeriesKeys  []string         `json:"dataKeys"`
	Data        []map[string]any `json:"data"`
}

// EssayPrompt is a generated Task 2 question.
type EssayPrompt struct {
	Topic    string `json:"topic"`
	Question string `json:"question"`
}

const (
	SegmentOK         = "ok"
	SegmentCorrection = "correction"
)

// Segment is one span of the checked text. Text is the original span;
// concatenating Text over a segment list yields the input.
type Segment struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Correction  string `json:"correction,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// Feedback is a graded evaluation. Band is in 0.5 steps between 0 and 9.
type Feedback struct {
	Band         float64  `json:"band"`
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Task types.
const (
	Task1 = "task1"
	Task2 = "task2"
)

// MinWords is the minimum response length per task type.
var MinWords = map[string]int{Task1: 150, Task2: 250}
