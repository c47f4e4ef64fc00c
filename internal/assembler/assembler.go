// Package assembler builds the length-bounded, citation-indexed context
// string handed to the generation stage.
package assembler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperhub/rag/internal/retrieval"
)

// DefaultMaxContextLength is the default context character budget.
const DefaultMaxContextLength = 4000

// maxCitationAuthors bounds how many authors a citation lists.
const maxCitationAuthors = 3

// Citation is a sequential reference generated at assembly time. The Number
// of the Nth citation always matches the [N] marker of the Nth context
// block, so the generation stage can be instructed to cite as "[N]".
// Citations are fresh per query and never reused across queries.
type Citation struct {
	Number  int      `json:"number"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    string   `json:"year"`
	URL     string   `json:"url"`
	Score   float64  `json:"score"`
}

// Builder assembles context strings from ranked candidates.
type Builder struct {
	maxLength int
	logger    *slog.Logger
}

// NewBuilder creates a Builder with the given character budget.
// maxLength <= 0 selects DefaultMaxContextLength.
func NewBuilder(maxLength int) *Builder {
	if maxLength <= 0 {
		maxLength = DefaultMaxContextLength
	}
	return &Builder{maxLength: maxLength, logger: slog.Default()}
}

// Build walks the candidates in ranked order and appends one marker-tagged
// block per candidate until appending the next block would exceed the
// character budget; blocks already accepted are kept. Each accepted
// candidate contributes exactly one citation carrying the score it had at
// acceptance time.
func (b *Builder) Build(candidates []retrieval.Candidate) (string, []Citation) {
	var sb strings.Builder
	var citations []Citation

	length := 0
	for _, c := range candidates {
		number := len(citations) + 1
		block := formatBlock(number, c)

		if length+len(block) > b.maxLength {
			b.logger.Debug("context budget reached", "accepted", len(citations), "budget", b.maxLength)
			break
		}

		sb.WriteString(block)
		length += len(block)
		citations = append(citations, newCitation(number, c))
	}

	return sb.String(), citations
}

// formatBlock renders a candidate as a context block tagged with its
// citation marker.
func formatBlock(number int, c retrieval.Candidate) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%d]", number))
	if c.Metadata.Title != "" {
		sb.WriteString(" ")
		sb.WriteString(c.Metadata.Title)
	}
	sb.WriteString("\n")
	sb.WriteString(c.Content)
	sb.WriteString("\n\n")
	return sb.String()
}

func newCitation(number int, c retrieval.Candidate) Citation {
	authors := c.Metadata.Authors
	if len(authors) > maxCitationAuthors {
		authors = authors[:maxCitationAuthors]
	}

	title := c.Metadata.Title
	if title == "" {
		title = "Unknown"
	}

	return Citation{
		Number:  number,
		Title:   title,
		Authors: authors,
		Year:    publicationYear(c.Metadata.Published),
		URL:     c.Metadata.URL,
		Score:   c.EffectiveScore(),
	}
}

// publicationYear extracts a four-digit year from the publication timestamp,
// or "Unknown" when none is present.
func publicationYear(published string) string {
	if len(published) < 4 {
		return "Unknown"
	}
	year := published[:4]
	for _, r := range year {
		if r < '0' || r > '9' {
			return "Unknown"
		}
	}
	return year
}
