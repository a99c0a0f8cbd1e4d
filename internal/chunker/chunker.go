package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"ai-note/backend/internal/model"
)

// tokenRe defines the token measure used for chunk budgets: a run of ASCII
// word characters counts as one token, any other non-space rune counts as
// one token on its own. Spaceless scripts therefore consume roughly one
// token per character, keeping window budgets stable across languages.
var tokenRe = regexp.MustCompile(`[a-zA-Z0-9_']+|[^\sa-zA-Z0-9_']`)

// Splitter splits text into bounded, overlapping token windows.
type Splitter struct {
	maxTokens     int
	overlapTokens int
}

// NewSplitter validates the window parameters. maxTokens must exceed
// overlapTokens and overlapTokens must be non-negative; anything else is a
// configuration error, not a silent behavior change.
func NewSplitter(maxTokens, overlapTokens int) (*Splitter, error) {
	if overlapTokens < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlapTokens)
	}
	if maxTokens <= overlapTokens {
		return nil, fmt.Errorf("chunk size (%d) must be greater than chunk overlap (%d)", maxTokens, overlapTokens)
	}
	return &Splitter{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Split cuts text into windows of at most maxTokens tokens, each window
// starting maxTokens-overlapTokens tokens after the previous one. The final
// partial window is kept. Window text is the original byte range spanning
// the window's first to last token, so splitting is deterministic and
// re-splitting unchanged text is byte-identical.
func (s *Splitter) Split(text string) []string {
	tokens := tokenRe.FindAllStringIndex(text, -1)
	if len(tokens) == 0 {
		return nil
	}

	var windows []string
	step := s.maxTokens - s.overlapTokens
	for i := 0; i < len(tokens); i += step {
		end := i + s.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, text[tokens[i][0]:tokens[end-1][1]])
		if end == len(tokens) {
			break
		}
	}
	return windows
}

// SplitConversation reconstructs the conversation transcript in strict
// sequence order and splits it into chunks carrying the conversation's
// metadata. Sequence numbers, not timestamps, are the sort key: timestamps
// are unreliable under concurrent completions.
//
// A conversation without at least one user and one assistant message yields
// no chunks; there is nothing worth indexing before the first reply.
func (s *Splitter) SplitConversation(conv *model.Conversation, messages []model.Message) []model.Chunk {
	ordered := make([]model.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceID < ordered[j].SequenceID
	})

	var hasUser, hasAssistant bool
	transcript := ""
	for i, msg := range ordered {
		switch msg.Role {
		case model.RoleUser:
			hasUser = true
		case model.RoleAssistant:
			hasAssistant = true
		}
		if i > 0 {
			transcript += "\n"
		}
		transcript += msg.Role + ": " + msg.Content
	}
	if !hasUser || !hasAssistant {
		return nil
	}

	windows := s.Split(transcript)
	chunks := make([]model.Chunk, 0, len(windows))
	for i, window := range windows {
		metadata := make(map[string]string, len(conv.Metadata)+2)
		for k, v := range conv.Metadata {
			metadata[k] = v
		}
		metadata["chunk_index"] = strconv.Itoa(i)
		metadata["total_chunks"] = strconv.Itoa(len(windows))

		chunks = append(chunks, model.Chunk{
			ID:        fmt.Sprintf("%s_chunk_%d", conv.ID, i),
			ParentID:  conv.ID,
			Model:     conv.Model,
			Timestamp: conv.CreatedAt,
			Text:      window,
			Metadata:  metadata,
		})
	}
	return chunks
}

// CountTokens reports the token count of text under the splitter's token
// measure. Exposed for tests and budget checks.
func CountTokens(text string) int {
	return len(tokenRe.FindAllString(text, -1))
}
