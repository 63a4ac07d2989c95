package knowledge

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/JohnHCunningham/housing-website/internal/metrics"
)

// Separator joins document bodies inside the assembled context.
const Separator = "\n\n---\n\n"

// DefaultDocuments lists the knowledge files in the order they are assembled.
var DefaultDocuments = []string{
	"1-company-overview.txt",
	"2-services-detailed.txt",
	"3-aoda-compliance-info.txt",
	"4-faqs.txt",
	"5-contact-process.txt",
}

// Fallback is used when no document could be loaded.
const Fallback = "You are a friendly voice assistant for AI Advantage Solutions, a housing consulting company in Ontario. " +
	"Help visitors learn about mixed income communities, near market rentals, and AODA compliance. " +
	"Keep responses brief and conversational since you're speaking."

const preamble = `You are a friendly and knowledgeable voice assistant for AI Advantage Solutions, a company that helps Ontario housing providers with mixed income communities, near market rentals, and AODA compliance.

Key guidelines for your responses:
- Be conversational and natural - you're having a voice conversation
- Keep responses concise (2-3 sentences max) since you're speaking aloud
- Be warm, professional, and helpful
- If you don't know something, be honest and offer to have someone contact them
- For complex questions, offer to send detailed information via email
- Always offer next steps (book a call, send an email, etc.)

Company Information:
`

const epilogue = "\n\nRemember: You're speaking, not writing, so be conversational and concise."

// ErrNoDocuments is returned by Assemble when every fetch failed.
var ErrNoDocuments = errors.New("knowledge: no documents loaded")

// Loader fetches the knowledge documents and builds the system context.
type Loader struct {
	source    Source
	documents []string
	log       zerolog.Logger
}

// NewLoader returns a loader for documents (DefaultDocuments when nil).
func NewLoader(source Source, documents []string, log zerolog.Logger) *Loader {
	if documents == nil {
		documents = DefaultDocuments
	}
	return &Loader{source: source, documents: documents, log: log}
}

// Assemble fetches every document concurrently and returns the bodies that
// succeeded, in list order, joined with Separator. Individual failures are
// logged and skipped.
func (l *Loader) Assemble(ctx context.Context) (string, error) {
	bodies := make([]string, len(l.documents))
	ok := make([]bool, len(l.documents))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range l.documents {
		i, name := i, name
		g.Go(func() error {
			body, err := l.source.Fetch(gctx, name)
			if err != nil {
				metrics.KnowledgeDocumentsLoaded.WithLabelValues("failed").Inc()
				l.log.Warn().Err(err).Str("document", name).Msg("could not load knowledge document")
				return nil
			}
			metrics.KnowledgeDocumentsLoaded.WithLabelValues("loaded").Inc()
			bodies[i], ok[i] = body, true
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(bodies))
	for i, body := range bodies {
		if ok[i] {
			parts = append(parts, body)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoDocuments
	}
	return strings.Join(parts, Separator), nil
}

// Build returns the full system context for the loaded documents, or Fallback.
func (l *Loader) Build(ctx context.Context) string {
	info, err := l.Assemble(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("using fallback system context")
		return Fallback
	}
	return preamble + info + epilogue
}

// LoadInto builds the context and stores it in dst. Intended to run in the
// background; callers never wait on it directly.
func (l *Loader) LoadInto(ctx context.Context, dst *Context) {
	text := l.Build(ctx)
	if dst.Set(text) {
		l.log.Info().Int("bytes", len(text)).Msg("system context loaded")
	}
}
