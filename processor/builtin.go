package processor

import (
	"context"
	"courier/contract"
	"courier/domain"
	"courier/domain/mimetypes"
	"courier/errors"
	"courier/moderation"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/gabriel-vasile/mimetype"
)

const (
	EchoService        = "echo"
	ModerationService  = "moderation"
	LanguageService    = "language"
	ContentTypeService = "mime"
)

// Echo answers with the content reversed.
type Echo struct{}

func (Echo) Process(_ context.Context, message domain.Message) (*domain.Reply, error) {
	runes := []rune(message.Content)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return &domain.Reply{Content: string(runes)}, nil
}

// Moderation answers with the censored content and the words it caught.
// Clean messages get no reply.
type Moderation struct {
	moderator moderation.Moderator
}

func NewModeration(moderator moderation.Moderator) *Moderation {
	return &Moderation{moderator: moderator}
}

func (m *Moderation) Process(_ context.Context, message domain.Message) (*domain.Reply, error) {
	censored, words := m.moderator.Censor(message.Content)
	if len(words) == 0 {
		return nil, nil
	}
	return &domain.Reply{
		Content:  censored,
		Metadata: map[string]any{"censored": words},
	}, nil
}

// Language answers with the ISO 639-1 code of the detected language.
type Language struct{}

func (Language) Process(_ context.Context, message domain.Message) (*domain.Reply, error) {
	if strings.TrimSpace(message.Content) == "" {
		return nil, nil
	}
	info := whatlanggo.Detect(message.Content)
	return &domain.Reply{
		Content: info.Lang.Iso6391(),
		Metadata: map[string]any{
			"language":   info.Lang.String(),
			"confidence": info.Confidence,
		},
	}, nil
}

// ContentType answers with the MIME type sniffed from the content.
type ContentType struct{}

func (ContentType) Process(_ context.Context, message domain.Message) (*domain.Reply, error) {
	detected := mimetype.Detect([]byte(message.Content))
	return &domain.Reply{
		Content: detected.String(),
		Metadata: map[string]any{
			"extension": detected.Extension(),
			"category":  string(mimetypes.Classify(detected.String())),
		},
	}, nil
}

// RegisterBuiltins registers the named built-in processors under their service names.
func RegisterBuiltins(registry contract.IProcessorRegistry, names []string, censorChar rune) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case EchoService:
			registry.Register(EchoService, Echo{})
		case LanguageService:
			registry.Register(LanguageService, Language{})
		case ContentTypeService:
			registry.Register(ContentTypeService, ContentType{})
		case ModerationService:
			data, err := moderation.NewEmbeddedLoader().LoadAll("censored")
			if err != nil {
				return fmt.Errorf("loading censored words: %w", err)
			}
			moderator, err := moderation.NewModerator(data.Words, censorChar)
			if err != nil {
				return fmt.Errorf("building moderator: %w", err)
			}
			registry.Register(ModerationService, NewModeration(moderator))
		default:
			return fmt.Errorf("%w: unknown built-in processor %q", errors.ErrInvalidArgument, name)
		}
	}
	return nil
}
