package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/generation"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

// priorEssayCount is how many recent versions feed the prompt as context.
const priorEssayCount = 3

// Generator is the external essay-generation collaborator. The concrete
// implementation lives in internal/generation; tests inject a fake.
type Generator interface {
	Complete(ctx context.Context, prompt string) (*generation.GeneratedContent, error)
}

// GenerationService orchestrates one essay-generation run: gather context,
// call the collaborator, validate the untrusted payload, and commit the new
// version with its tidbits in a single transaction.
//
// CONCURRENCY NOTE:
// Two concurrent runs for the same user race on "what is the latest
// version". Callers serialize generation per user (the voice webhook is
// effectively serial per user; one call ends at a time); if a race does
// happen anyway the store's version-number uniqueness makes one side fail
// with Conflict rather than forking the chain.
type GenerationService struct {
	users     repository.UserRepository
	essays    repository.EssayRepository
	store     repository.GenerationStore
	generator Generator
	logger    *slog.Logger
}

func NewGenerationService(
	users repository.UserRepository,
	essays repository.EssayRepository,
	store repository.GenerationStore,
	generator Generator,
	logger *slog.Logger,
) *GenerationService {
	return &GenerationService{
		users:     users,
		essays:    essays,
		store:     store,
		generator: generator,
		logger:    logger,
	}
}

// GenerateFromCall turns a finished voice call into a new Living Essay
// version plus its tidbits.
//
// Nothing is written until the collaborator's output has fully validated:
// a failed request, an unparsable reply, or a malformed structure all abort
// with zero state committed. The commit itself is one transaction, so a
// version can never land without its tidbit associations.
func (s *GenerationService) GenerateFromCall(ctx context.Context, call *model.CallSummary) (*generation.GeneratedContent, error) {
	if call == nil || strings.TrimSpace(call.ExternalUserID) == "" {
		return nil, apperror.ValidationFailed("externalUserId",
			"call summary must carry a resolvable user")
	}

	user, err := s.users.GetByExternalID(ctx, call.ExternalUserID)
	if err != nil {
		return nil, err
	}

	recent, err := s.essays.GetRecentVersions(ctx, user.ID, priorEssayCount)
	if err != nil {
		return nil, fmt.Errorf("loading prior essays: %w", err)
	}

	prompt := buildPrompt(ArchetypeSummary(user), recent, call)

	content, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("generation request failed",
			slog.String("userId", user.ID),
			slog.String("callId", call.CallID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	sections, items, err := validateGenerated(content)
	if err != nil {
		s.logger.Warn("generation returned malformed content",
			slog.String("userId", user.ID),
			slog.String("callId", call.CallID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	version, tidbits, err := s.store.CommitGeneration(ctx, user.ID, sections, items)
	if err != nil {
		s.logger.Error("failed to commit generated content",
			slog.String("userId", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("committing generated content: %w", err)
	}

	s.logger.Info("essay generated",
		slog.String("userId", user.ID),
		slog.String("essayId", version.ID),
		slog.Int("version", version.Version),
		slog.Int("tidbits", len(tidbits)),
	)
	return content, nil
}

// validateGenerated checks the collaborator's untrusted payload against the
// domain rules and converts it into typed storage inputs. Order is
// preserved; association positions follow the generator's tidbit order.
func validateGenerated(content *generation.GeneratedContent) ([]model.Section, []repository.NewTidbit, error) {
	if content == nil || content.Sections == nil {
		return nil, nil, apperror.ValidationFailed("sections",
			"generated content is missing sections")
	}
	if content.Tidbits == nil {
		return nil, nil, apperror.ValidationFailed("tidbits",
			"generated content is missing tidbits")
	}

	sections := make([]model.Section, 0, len(content.Sections))
	for _, s := range content.Sections {
		sections = append(sections, model.Section{
			Heading: s.Heading,
			Content: s.Content,
		})
	}
	if err := validateSections(sections); err != nil {
		return nil, nil, err
	}

	items := make([]repository.NewTidbit, 0, len(content.Tidbits))
	for i, t := range content.Tidbits {
		kind := model.TidbitType(t.Type)
		if !model.ValidTidbitType(kind) {
			return nil, nil, apperror.ValidationFailed("tidbits",
				fmt.Sprintf("tidbit %d has unknown type %q", i, t.Type))
		}
		if strings.TrimSpace(t.Content) == "" {
			return nil, nil, apperror.ValidationFailed("tidbits",
				fmt.Sprintf("tidbit %d has empty content", i))
		}
		if strings.TrimSpace(t.Description) == "" {
			return nil, nil, apperror.ValidationFailed("tidbits",
				fmt.Sprintf("tidbit %d has empty description", i))
		}
		items = append(items, repository.NewTidbit{
			Type:           kind,
			Content:        t.Content,
			RelevanceScore: t.RelevanceScore,
		})
	}

	return sections, items, nil
}

// buildPrompt assembles the system prompt: instructions, the founder's
// archetype sketch, recent essay context, and the new conversation.
func buildPrompt(archetypes string, recent []model.EssayVersion, call *model.CallSummary) string {
	var b strings.Builder

	b.WriteString(`You are generating a "Living Essay" for a startup founder who is thinking aloud to Fred, their AI companion. This is not a transcript or a diary. It is a dynamic, narrative snapshot of their founder psychology: how they are processing tradeoffs, vision, anxieties, inner momentum, and emergent clarity across time.

Instructions:
- Write in second person ("you", "your") to keep it personal.
- Maintain the founder's tone. Do not sanitize the contradictions.
- Identify 1-3 central themes running through this reflection.
- For each theme, name it as a section heading and write one paragraph that follows the founder's thought progression. Keep it vivid. Keep it raw.
- Keep their original metaphors and phrases where possible.
- Always end on an unfinished note. This is a living essay, not a wrap-up.

Add 2-4 "tidbits": short insight tags that act as building blocks for future patterns. Each tidbit has a type ("Mood", "Focus", "Value", "Tension", "Joy", "Future", "Echo", "Shift"), a 1-2 sentence content, a short description of why it matters, and a relevance score (0-1 float).

Founder archetypes:
`)
	b.WriteString(archetypes)

	b.WriteString("\n\nRecent essay entries (if any):\n")
	b.WriteString(priorEssayContext(recent))

	b.WriteString("\n\nRecent conversation summary:\n")
	b.WriteString(call.Summary)
	b.WriteString("\n\nFull transcript:\n")
	b.WriteString(call.Transcript)

	b.WriteString(`

Output JSON format:
{"sections": [{"heading": string, "content": string}], "tidbits": [{"type": string, "content": string, "description": string, "relevanceScore": number}]}`)

	return b.String()
}

// priorEssayContext flattens recent versions into "heading:\ncontent" blocks
// separated per version.
func priorEssayContext(recent []model.EssayVersion) string {
	if len(recent) == 0 {
		return ""
	}
	versions := make([]string, 0, len(recent))
	for _, v := range recent {
		parts := make([]string, 0, len(v.Sections))
		for _, s := range v.Sections {
			parts = append(parts, s.Heading+":\n"+s.Content)
		}
		versions = append(versions, strings.Join(parts, "\n\n"))
	}
	return strings.Join(versions, "\n\n---\n\n")
}
