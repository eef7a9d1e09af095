// Package service answers questions from the indexed documents.
package service

import (
	"context"
	"fmt"
	"strings"

	"wikirag/internal/domain"
	"wikirag/internal/logger"
)

// Evidence identifies a passage that was given to the answer service.
type Evidence struct {
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name,omitempty"`
	FileDate   string  `json:"file_date"`
	PageNumber int     `json:"page_number,omitempty"`
	Score      float64 `json:"score"`
}

// Answer is the result of a question. When Error is set the other fields
// are not meaningful.
type Answer struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	FilesUsed []Evidence `json:"files_used"`
	// MinScore is reported only with the no-result answer.
	MinScore *float64 `json:"min_score,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Options configure retrieval and generation.
type Options struct {
	Collection     string
	TopK           int
	SystemPrompt   string
	NoResultAnswer string
	Refusal        string
	Model          string
	Temperature    float64
	MaxTokens      int
}

// QueryService embeds a question, retrieves the closest passages and asks
// the answer service to respond from them only.
type QueryService struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	generator domain.Generator
	opts      Options
}

func NewQueryService(embedder domain.Embedder, index domain.VectorIndex, generator domain.Generator, opts Options) *QueryService {
	if opts.TopK <= 0 {
		opts.TopK = 1
	}
	return &QueryService{embedder: embedder, index: index, generator: generator, opts: opts}
}

// DefaultCollection is the collection searched when a request names none.
func (s *QueryService) DefaultCollection() string { return s.opts.Collection }

// Answer never returns a Go error; failures are reported in Answer.Error.
// An empty collection selects the default one.
func (s *QueryService) Answer(ctx context.Context, question string, minScore float64, collection string) Answer {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{Error: "La question est vide."}
	}
	if collection == "" {
		collection = s.opts.Collection
	}
	log := logger.L().With("collection", collection)

	vecs, err := s.embedder.Embed(ctx, []string{question}, domain.TaskQuery)
	if err != nil {
		log.Error("embed question", "error", err)
		return Answer{Error: fmt.Sprintf("Erreur lors de l'encodage de la question : %v", err)}
	}
	if len(vecs) != 1 {
		return Answer{Error: fmt.Sprintf("Erreur lors de l'encodage de la question : %d vecteurs reçus", len(vecs))}
	}

	hits, err := s.index.Search(ctx, collection, vecs[0], s.opts.TopK)
	if err != nil {
		log.Error("search", "error", err)
		return Answer{Error: fmt.Sprintf("Erreur lors de la recherche : %v", err)}
	}
	kept := Filter(hits, minScore)
	log.Debug("search done", "hits", len(hits), "kept", len(kept), "min_score", minScore)
	if len(kept) == 0 {
		return Answer{
			Question:  question,
			Answer:    s.opts.NoResultAnswer,
			FilesUsed: []Evidence{},
			MinScore:  &minScore,
		}
	}

	texts := make([]string, 0, len(kept))
	evidence := make([]Evidence, 0, len(kept))
	for _, h := range kept {
		ev := Evidence{Score: h.Score}
		if p := h.Payload; p != nil {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
			ev.FilePath, ev.FileName, ev.FileDate, ev.PageNumber = p.FilePath, p.FileName, p.FileDate, p.PageNumber
		}
		evidence = append(evidence, ev)
	}

	messages := []domain.Message{
		{Role: "system", Content: s.opts.SystemPrompt},
		{Role: "user", Content: BuildPrompt(strings.Join(texts, "\n\n"), question, s.opts.Refusal)},
	}
	text, err := s.generator.Complete(ctx, messages, domain.CompletionOptions{
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		log.Error("generate answer", "error", err)
		return Answer{Error: fmt.Sprintf("Erreur lors de l'appel au modèle : %v", err)}
	}
	return Answer{Question: question, Answer: text, FilesUsed: evidence}
}

// Filter keeps hits scoring at least minScore, preserving rank order.
func Filter(hits []domain.Hit, minScore float64) []domain.Hit {
	var out []domain.Hit
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	return out
}

// BuildPrompt assembles the grounded user prompt. The model is told to use
// only the context and to answer with refusal when it does not contain the
// answer.
func BuildPrompt(passages, question, refusal string) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant qui répond à des questions à partir des documents suivants.\n")
	b.WriteString("N'utilise aucune connaissance extérieure au contexte. Si tu ne sais pas, n'invente pas. Limite-toi à 10 lignes.\n")
	if refusal != "" {
		fmt.Fprintf(&b, "Si la réponse ne se trouve pas dans le contexte, réponds exactement : « %s »\n", refusal)
	}
	b.WriteString("\nContexte :\n")
	b.WriteString(passages)
	b.WriteString("\n\nQuestion : ")
	b.WriteString(question)
	b.WriteString("\nRéponse :\n")
	return b.String()
}
