package rag

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ModeError reports a query mode the engine does not know.
type ModeError struct {
	Mode string
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("unknown mode '%s' (want one of %s)", e.Mode, strings.Join(Modes(), ", "))
}

func (e *ModeError) BadInput() bool { return true }

var systemPrompts = map[string]string{
	"standard": "You are a helpful assistant. Answer the question using only the provided context. " +
		"If the context does not contain the answer, say that you do not know.",
	"concise": "You are a helpful assistant. Answer in at most two sentences using only the provided context. " +
		"If the context does not contain the answer, say that you do not know.",
	"detailed": "You are a thorough assistant. Give a complete, well structured answer using only the provided context, " +
		"citing passages by their [number]. If the context does not contain the answer, say that you do not know.",
}

// Modes lists the supported query modes.
func Modes() []string {
	modes := make([]string, 0, len(systemPrompts))
	for m := range systemPrompts {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}

var userPrompt = template.Must(template.New("user").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`Context:
{{range $i, $c := .Chunks}}[{{inc $i}}]{{if $c.Source}} ({{$c.Source}}){{end}} {{$c.Text}}
{{end}}
Question: {{.Question}}`))

type promptData struct {
	Question string
	Chunks   []ScoredChunk
}

// buildPrompt returns the system and user messages for mode. override, when
// set, replaces the mode's system prompt.
func buildPrompt(mode, override, question string, chunks []ScoredChunk) (system, user string, err error) {
	system, ok := systemPrompts[mode]
	if !ok {
		return "", "", &ModeError{Mode: mode}
	}
	if strings.TrimSpace(override) != "" {
		system = override
	}

	var buf bytes.Buffer
	if err := userPrompt.Execute(&buf, promptData{Question: question, Chunks: chunks}); err != nil {
		return "", "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return system, buf.String(), nil
}
