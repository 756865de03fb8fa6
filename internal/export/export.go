package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/formistiq/backend/internal/domain"
	"github.com/google/uuid"
)

// PackContents holds all files for a form's results pack.
type PackContents struct {
	FormJSON     []byte
	ResponsesCSV []byte
	SummaryMD    []byte
}

// GeneratePack builds the downloadable results pack for a form. The
// form must carry its responses (owner view).
func GeneratePack(form *domain.Form) (*PackContents, error) {
	formJSON, err := json.MarshalIndent(form.WithoutResponses(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal form: %w", err)
	}

	csvData, err := renderResponsesCSV(form)
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}

	return &PackContents{
		FormJSON:     formJSON,
		ResponsesCSV: csvData,
		SummaryMD:    renderSummaryMarkdown(form),
	}, nil
}

// WriteZip writes the pack contents to a zip archive.
func WriteZip(contents *PackContents, w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	files := map[string][]byte{
		"form.json":     contents.FormJSON,
		"responses.csv": contents.ResponsesCSV,
		"SUMMARY.md":    contents.SummaryMD,
	}

	for name, data := range files {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	return nil
}

// renderResponsesCSV produces one row per response with a column per
// question, in the form's question order. Answers to questions the
// form no longer has are dropped.
func renderResponsesCSV(form *domain.Form) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"response_id", "submitted_at", "respondent_id"}
	for _, q := range form.Questions {
		header = append(header, q.Text)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	columns := make(map[uuid.UUID]int, len(form.Questions))
	for i, q := range form.Questions {
		columns[q.ID] = i
	}

	for _, resp := range form.Responses {
		row := make([]string, 3+len(form.Questions))
		row[0] = resp.ID.String()
		row[1] = resp.SubmittedAt.UTC().Format(time.RFC3339)
		if resp.UserID != nil {
			row[2] = resp.UserID.String()
		}
		for _, a := range resp.Answers {
			if col, ok := columns[a.QuestionID]; ok {
				row[3+col] = a.Answer
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderSummaryMarkdown(form *domain.Form) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", form.Title))
	if form.Description != "" {
		buf.WriteString(form.Description + "\n\n")
	}
	buf.WriteString(fmt.Sprintf("Exported: %s\n\n", time.Now().UTC().Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("- Responses: %d\n", len(form.Responses)))
	buf.WriteString(fmt.Sprintf("- Questions: %d\n", len(form.Questions)))
	buf.WriteString(fmt.Sprintf("- Share URL token: %s\n\n", form.UniqueURL))

	buf.WriteString("## Questions\n\n")
	for i, q := range form.Questions {
		required := ""
		if q.Required {
			required = " (required)"
		}
		buf.WriteString(fmt.Sprintf("%d. %s [%s]%s\n", i+1, q.Text, q.Kind, required))
		for _, opt := range q.Options {
			buf.WriteString(fmt.Sprintf("   - %s\n", opt))
		}
	}
	buf.WriteString("\n")

	return buf.Bytes()
}

// Filename returns a safe download filename for the form's pack.
func Filename(form *domain.Form) string {
	return sanitizeFilename(form.Title) + "-responses.zip"
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "form"
	}
	return b.String()
}
