package service

import (
	"context"
	"log/slog"
	"strings"

	"ai-note/backend/internal/model"
	"ai-note/backend/internal/repository"
)

// SearchService answers keyword queries over stored messages. The primary
// path is the ranked full-text index; when that errors the service degrades
// to a substring scan, and on total failure it returns an empty result
// instead of propagating. The keyword search path never fails loudly.
type SearchService struct {
	repo         repository.Repository
	contextChars int
}

func NewSearchService(repo repository.Repository, contextChars int) *SearchService {
	if contextChars <= 0 {
		contextChars = 80
	}
	return &SearchService{repo: repo, contextChars: contextChars}
}

// SearchKeyword returns one record per matching conversation, carrying the
// conversation summary and the ordered match contexts found within it.
func (s *SearchService) SearchKeyword(ctx context.Context, keyword string, limit int) []model.ConversationMatch {
	matches, err := s.repo.SearchMessages(ctx, keyword, limit)
	if err != nil {
		slog.Warn("Full-text search failed, falling back to substring scan.", "keyword", keyword, "error", err)
		matches, err = s.repo.ScanMessages(ctx, keyword, limit)
		if err != nil {
			slog.Error("Fallback substring scan failed, returning empty result.", "keyword", keyword, "error", err)
			return []model.ConversationMatch{}
		}
	}
	return s.groupByConversation(matches, keyword)
}

// groupByConversation folds message-level matches into one output record
// per conversation, preserving the backend's ranking order.
func (s *SearchService) groupByConversation(matches []model.MessageMatch, keyword string) []model.ConversationMatch {
	grouped := []model.ConversationMatch{}
	position := map[string]int{}
	for _, m := range matches {
		ctxWindow := s.matchContext(m.Message.Content, keyword)
		if idx, ok := position[m.Conversation.ID]; ok {
			grouped[idx].Contexts = append(grouped[idx].Contexts, ctxWindow)
			continue
		}
		position[m.Conversation.ID] = len(grouped)
		grouped = append(grouped, model.ConversationMatch{
			Conversation: m.Conversation,
			Contexts:     []string{ctxWindow},
		})
	}
	return grouped
}

// matchContext extracts a bounded window of contextChars runes before and
// after the first occurrence of the keyword, marking truncation with an
// ellipsis on the affected side. The case-sensitive position is preferred;
// a case-insensitive one is the fallback, and a token-level match that
// cannot be located at all yields the head of the content.
func (s *SearchService) matchContext(content, keyword string) string {
	byteIdx := strings.Index(content, keyword)
	if byteIdx < 0 {
		byteIdx = strings.Index(strings.ToLower(content), strings.ToLower(keyword))
	}

	runes := []rune(content)
	if byteIdx < 0 {
		end := 2 * s.contextChars
		if end >= len(runes) {
			return content
		}
		return string(runes[:end]) + "..."
	}

	matchStart := len([]rune(content[:byteIdx]))
	matchEnd := matchStart + len([]rune(keyword))
	if matchEnd > len(runes) {
		matchEnd = len(runes)
	}

	start := matchStart - s.contextChars
	if start < 0 {
		start = 0
	}
	end := matchEnd + s.contextChars
	if end > len(runes) {
		end = len(runes)
	}

	window := string(runes[start:end])
	if start > 0 {
		window = "..." + window
	}
	if end < len(runes) {
		window += "..."
	}
	return window
}
