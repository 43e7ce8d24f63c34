package ai

import (
	"strings"
	"text/template"
)

const answerSystemPrompt = "You answer questions about a single document using only the excerpts provided. " +
	"Do not add introductions or polite endings."

var prompts = template.Must(template.New("prompts").Parse(`
{{define "answer"}}You are analyzing a document and answering a specific question about its content.

{{range $i, $e := .Excerpts}}[Excerpt {{$i}}]
{{$e}}
[/Excerpt]

{{end}}Now, answer the following question based solely on the excerpts above:

Question: {{.Question}}

Provide a detailed and accurate answer based only on the information in the excerpts.
If they don't contain enough information to answer completely, say so and explain what's missing.

Answer:{{end}}

{{define "requirement"}}You are analyzing a document against a specific requirement.

{{range $i, $e := .Excerpts}}[Excerpt {{$i}}]
{{$e}}
[/Excerpt]

{{end}}Check whether the document meets the following requirement:

Requirement: {{.Question}}

First, rephrase the requirement as a question that would help assess if the document meets it.
Then, provide a detailed assessment based only on the excerpts above.
If they don't contain enough information to evaluate the requirement completely, say so and explain what's missing.

Answer:{{end}}

{{define "classify"}}Given the following question:
[Question]
{{.Question}}
[/Question]

And the following answer:
[Answer]
{{.Answer}}
[/Answer]

Provide a sentiment on whether the answer is positive, negative, or neutral. Use the following score values:
Positive = 100,
Negative = 800,
Neutral = 999

* Negative (800): the answer is negative or irrelevant to the question asked, or it says details are missing
or parts of the question have not been satisfied. "INFO NOT FOUND" is negative too.
* Positive (100): the answer is good and relevant to the question asked.
* Neutral (999): you cannot determine the sentiment using the two rules above.

Reply with ONLY the number, no introduction and no explanation.{{end}}

{{define "explain"}}Given the following question:
[Question]
{{.Question}}
[/Question]

And the following answer:
[Answer]
{{.Answer}}
[/Answer]

You provided the following sentiment of the answer in relation to the question asked:
{{.Sentiment}}

Provide a reasoning for the sentiment in plain English.
Be brief, but provide enough context to justify it.{{end}}
`))

type promptData struct {
	Question  string
	Answer    string
	Sentiment string
	Excerpts  []string
}

func render(name string, data promptData) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
