package ai

import (
	"fmt"
	"strings"
)

// BuildReportPrompt asks for an IELTS Task 1 prompt with chart data.
func BuildReportPrompt(chartType string) string {
	return fmt.Sprintf(`You are an IELTS examiner writing an Academic Writing Task 1 question.
Create a realistic question describing data shown in a %[1]s chart.

Respond with a single JSON object and nothing else:
{
  "title": "short chart title",
  "instruction": "the full task instruction shown to the candidate, ending with 'Summarise the information by selecting and reporting the main features, and make comparisons where relevant.'",
  "chartType": "%[1]s",
  "xAxisKey": "name of the category field in each data row",
  "dataKeys": ["names of the numeric fields in each data row"],
  "data": [ { "<xAxisKey>": "category", "<dataKey>": 12.5 } ]
}

Rules:
- "data" must contain between %[2]d and %[3]d rows.
- Every row must contain the xAxisKey field and every field listed in dataKeys.
- Values in dataKeys fields must be numbers.
- For a pie chart use exactly one data key; values should sum to 100.`, chartType, minReportRows, maxReportRows)
}

// BuildEssayPrompt asks for an IELTS Task 2 essay question.
func BuildEssayPrompt() string {
	return `You are an IELTS examiner writing an Academic Writing Task 2 question.
Pick a common IELTS theme (education, technology, environment, health, work, society, culture or government).
Use one of the standard question forms: opinion, discussion, advantages and disadvantages, problem and solution, or two-part question.

Respond with a single JSON object and nothing else:
{
  "topic": "two to four word topic label",
  "question": "the full essay question, ending with 'Give reasons for your answer and include any relevant examples from your own knowledge or experience.'"
}`
}

// BuildGrammarPrompt asks for text split into ok and correction segments.
func BuildGrammarPrompt(text string) string {
	return fmt.Sprintf(`Check the following text for grammar, spelling and punctuation mistakes.

Split the text into consecutive segments in their original order. Each segment is either:
- {"type": "ok", "text": "<original text>"}
- {"type": "correction", "text": "<original text>", "correction": "<corrected text>", "explanation": "<one short sentence>"}

Concatenating the "text" of every segment must reproduce the input exactly, character for character, including spaces and line breaks. Keep segments short around each mistake.

Respond with a JSON array of segments and nothing else.

Text:
"""
%s
"""`, text)
}

// BuildEvaluationPrompt asks for a band score with feedback. wordCount is
// computed by the caller and must be used as is.
func BuildEvaluationPrompt(taskType, prompt, text string, wordCount int) string {
	label, criterion := "Task 2", "Task Response"
	if taskType == Task1 {
		label, criterion = "Task 1", "Task Achievement"
	}
	minWords := MinWords[taskType]

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an experienced IELTS examiner grading an Academic Writing %s response.\n\n", label)
	fmt.Fprintf(&sb, "Question:\n\"\"\"\n%s\n\"\"\"\n\n", prompt)
	fmt.Fprintf(&sb, "Candidate response:\n\"\"\"\n%s\n\"\"\"\n\n", text)
	fmt.Fprintf(&sb, "The response has exactly %d words. Use this count; do not count the words yourself. ", wordCount)
	fmt.Fprintf(&sb, "Responses under %d words should be penalised under %s.\n\n", minWords, criterion)
	sb.WriteString("Grade using the four official criteria (")
	sb.WriteString(criterion)
	sb.WriteString(", Coherence and Cohesion, Lexical Resource, Grammatical Range and Accuracy). ")
	sb.WriteString("Do not comment on spelling or minor grammar slips; those are reported separately.\n\n")
	sb.WriteString(`Respond with a single JSON object and nothing else:
{
  "band": <overall band from 0 to 9 in steps of 0.5>,
  "summary": "three to five sentence overall assessment",
  "strengths": ["short bullet", "..."],
  "improvements": ["short actionable bullet", "..."]
}`)
	return sb.String()
}
