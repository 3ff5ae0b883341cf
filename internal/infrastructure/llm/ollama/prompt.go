package ollama

import (
	"fmt"
	"strings"

	"github.com/regulens/regulens/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.Chunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] chunk=%s source=%s\n%s\n\n",
			idx+1,
			chunk.ID,
			chunk.SourceID,
			chunk.IndexedText(),
		))
	}

	return fmt.Sprintf(`Answer the user question only from the context passages below.
Quote figures and dates exactly as they appear in the passages.
If the context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
