package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Methods a pipeline trigger may use.
var Methods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// Trigger is the HTTP request that starts a stored pipeline.
type Trigger struct {
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Normalize upper-cases the method and defaults it to GET.
func (t Trigger) Normalize() (Trigger, error) {
	m, err := NormalizeMethod(t.Method)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Method: m, URL: strings.TrimSpace(t.URL)}, nil
}

// NormalizeMethod upper-cases m and defaults it to GET.
func NormalizeMethod(m string) (string, error) {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return "GET", nil
	}
	for _, allowed := range Methods {
		if m == allowed {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported method %q", ErrInvalidTrigger, m)
}

// Submission is the body of a pipeline store write: a wire document plus
// its trigger.
type Submission struct {
	Document
	Trigger
}

// MarshalJSON flattens the document and trigger into one object.
func (s Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string  `json:"name"`
		Content Content `json:"content"`
		Method  string  `json:"method,omitempty"`
		URL     string  `json:"url,omitempty"`
	}{s.Name, s.Content, s.Method, s.URL})
}

// DecodeSubmission parses a submission body. Document fields get the same
// presence checks as DecodeDocument.
func DecodeSubmission(data []byte) (Submission, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return Submission{}, err
	}
	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return Submission{}, malformed("", "invalid trigger: %v", err)
	}
	return Submission{Document: doc, Trigger: t}, nil
}

// Record is a pipeline as the store keeps it.
type Record struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
	Method  string          `json:"method"`
	URL     string          `json:"url"`
}

// Document decodes the stored content back into a wire document.
func (r Record) Document() (Document, error) {
	data, err := json.Marshal(struct {
		Name    string          `json:"name"`
		Content json.RawMessage `json:"content"`
	}{r.Name, r.Content})
	if err != nil {
		return Document{}, malformed("content", "%v", err)
	}
	return DecodeDocument(data)
}

// Graph hydrates the stored content.
func (r Record) Graph() (*Graph, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	return Deserialize(doc)
}

// EncodeContent renders the content half of doc for storage.
func EncodeContent(doc Document) (json.RawMessage, error) {
	return json.Marshal(doc.Content)
}
