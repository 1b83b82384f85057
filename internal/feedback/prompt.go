package feedback

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/posturepulse/dashboard/internal/posture"
)

var feedbackPrompt = template.Must(template.New("feedback").Parse(
	`You are a posture expert providing feedback to users based on their historical posture data.

Analyze the following posture data for user ID {{.SubjectID}}:

{{.PostureJSON}}

Provide personalized feedback to the user, highlighting trends and areas for improvement. Focus on actionable insights and positive reinforcement. Keep the feedback concise and easy to understand.

Feedback:`))

var dailySummaryPrompt = template.Must(template.New("daily-summary").Parse(
	`You are an AI assistant that summarizes daily posture data for users.

Given the following posture data for user {{.SubjectID}} on {{.Date}}, provide a summary that includes:

- Average sitting time
- Longest standing period
- Any detected anomalies or unusual patterns

Posture Data:
{{range .Samples}}- Timestamp: {{.Timestamp}}, Sitting: {{.Sitting}}
{{end}}
Summary:`))

type promptData struct {
	SubjectID   string
	Date        string
	PostureJSON string
	Samples     []posture.SerializedSample
}

func renderPrompt(kind Kind, subjectID, date string, samples []posture.SerializedSample) (string, error) {
	data := promptData{
		SubjectID: subjectID,
		Date:      date,
		Samples:   samples,
	}

	var tmpl *template.Template
	switch kind {
	case KindFeedback:
		encoded, err := json.Marshal(samples)
		if err != nil {
			return "", fmt.Errorf("encode posture data: %w", err)
		}
		data.PostureJSON = string(encoded)
		tmpl = feedbackPrompt
	case KindDailySummary:
		tmpl = dailySummaryPrompt
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
