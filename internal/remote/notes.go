package remote

import (
	"context"
	"strconv"

	"github.com/gokatarajesh/notes-quiz/internal/notes"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
)

var _ notes.Summarizer = (*Client)(nil)

type markdownResponse struct {
	Markdown string `json:"markdown"`
}

// ExtractText reads a PDF through the heuristic notes endpoint in auto mode;
// the returned markdown is the quiz source text.
func (c *Client) ExtractText(ctx context.Context, doc quiz.Document) (string, error) {
	f := newForm()
	f.file("file", pdfName(doc.Name), "application/pdf", doc.Data)
	f.field("auto", "true")
	f.field("ocr", boolField(doc.OCR))

	var resp markdownResponse
	if err := c.postMultipart(ctx, "extract", "/api/notes", "Failed to read PDF", f, &resp); err != nil {
		return "", err
	}
	return resp.Markdown, nil
}

// Summarize generates notes with the smart (LLM) or heuristic endpoint.
func (c *Client) Summarize(ctx context.Context, req notes.Request) (string, error) {
	f := newForm()
	f.file("file", pdfName(req.FileName), "application/pdf", req.PDF)

	op, path := "notes", "/api/notes"
	if req.Smart {
		op, path = "smart-notes", "/api/smart-notes"
		f.field("provider", req.Provider)
		f.field("model", req.Model)
		f.field("ocr", boolField(req.OCR))
	} else {
		f.field("auto", boolField(req.Auto))
		if req.Auto {
			f.field("ratio", "auto")
			f.field("max_bullets", "auto")
		} else {
			f.field("ratio", strconv.FormatFloat(req.Ratio, 'f', -1, 64))
			f.field("max_bullets", strconv.Itoa(req.MaxBullets))
		}
		f.field("ocr", boolField(req.OCR))
	}

	var resp markdownResponse
	if err := c.postMultipart(ctx, op, path, "Server error", f, &resp); err != nil {
		return "", err
	}
	return resp.Markdown, nil
}

func pdfName(name string) string {
	if name == "" {
		return "upload.pdf"
	}
	return name
}
