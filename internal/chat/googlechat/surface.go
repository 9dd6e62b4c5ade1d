package googlechat

import (
	"context"
	"fmt"
	"strings"

	"github.com/advicehub/counsel/internal/chat"
	chatapi "google.golang.org/api/chat/v1"
	"google.golang.org/api/option"
)

// Surface sends and patches messages in one Google Chat space family. The
// adviser-facing and supervisor-facing surfaces are two instances constructed
// with different service-account credentials.
type Surface struct {
	svc *chatapi.Service
}

// NewSurface creates a surface from a service-account credentials file
func NewSurface(ctx context.Context, credentialsFile string) (*Surface, error) {
	svc, err := chatapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(chatapi.ChatBotScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat service: %w", err)
	}
	return &Surface{svc: svc}, nil
}

// SendNew posts content to a space, replying into threadID when given
func (s *Surface) SendNew(ctx context.Context, spaceID, threadID string, content chat.Content) (string, string, error) {
	msg := toMessage(content)
	if threadID != "" {
		msg.Thread = &chatapi.Thread{Name: fmt.Sprintf("spaces/%s/threads/%s", spaceID, threadID)}
	}

	resp, err := s.svc.Spaces.Messages.Create("spaces/"+spaceID, msg).
		MessageReplyOption("REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD").
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("failed to send chat message: %w", err)
	}

	thread := ""
	if resp.Thread != nil {
		thread = lastSegment(resp.Thread.Name)
	}
	return thread, lastSegment(resp.Name), nil
}

// Update patches an existing message in place
func (s *Surface) Update(ctx context.Context, spaceID, messageID string, content chat.Content) error {
	msg := toMessage(content)
	mask := "text"
	if content.Card != nil {
		mask = "cardsV2"
	}

	name := fmt.Sprintf("spaces/%s/messages/%s", spaceID, messageID)
	_, err := s.svc.Spaces.Messages.Patch(name, msg).
		UpdateMask(mask).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update chat message: %w", err)
	}
	return nil
}

// Delete removes a message
func (s *Surface) Delete(ctx context.Context, spaceID, messageID string) error {
	name := fmt.Sprintf("spaces/%s/messages/%s", spaceID, messageID)
	if _, err := s.svc.Spaces.Messages.Delete(name).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete chat message: %w", err)
	}
	return nil
}

func lastSegment(name string) string {
	parts := strings.Split(name, "/")
	return parts[len(parts)-1]
}

func toMessage(content chat.Content) *chatapi.Message {
	if content.Card == nil {
		return &chatapi.Message{Text: content.Text}
	}
	return &chatapi.Message{
		CardsV2: []*chatapi.CardWithId{{
			CardId: content.Card.ID,
			Card:   toCard(*content.Card),
		}},
	}
}

func toCard(card chat.Card) *chatapi.GoogleAppsCardV1Card {
	out := &chatapi.GoogleAppsCardV1Card{}
	for _, section := range card.Sections {
		s := &chatapi.GoogleAppsCardV1Section{Header: section.Header}
		for _, widget := range section.Widgets {
			s.Widgets = append(s.Widgets, toWidget(widget))
		}
		out.Sections = append(out.Sections, s)
	}
	return out
}

func toWidget(w chat.Widget) *chatapi.GoogleAppsCardV1Widget {
	switch {
	case w.TopLabel != "":
		return &chatapi.GoogleAppsCardV1Widget{
			DecoratedText: &chatapi.GoogleAppsCardV1DecoratedText{
				TopLabel: w.TopLabel,
				Text:     w.TextParagraph,
			},
		}
	case len(w.Buttons) > 0:
		list := &chatapi.GoogleAppsCardV1ButtonList{}
		for _, b := range w.Buttons {
			list.Buttons = append(list.Buttons, toButton(b))
		}
		return &chatapi.GoogleAppsCardV1Widget{ButtonList: list}
	case w.TextInput != nil:
		inputType := "SINGLE_LINE"
		if w.TextInput.Multiline {
			inputType = "MULTIPLE_LINE"
		}
		return &chatapi.GoogleAppsCardV1Widget{
			TextInput: &chatapi.GoogleAppsCardV1TextInput{
				Name:  w.TextInput.Name,
				Label: w.TextInput.Label,
				Value: w.TextInput.Value,
				Type:  inputType,
			},
		}
	default:
		return &chatapi.GoogleAppsCardV1Widget{
			TextParagraph: &chatapi.GoogleAppsCardV1TextParagraph{Text: w.TextParagraph},
		}
	}
}

func toButton(b chat.Button) *chatapi.GoogleAppsCardV1Button {
	action := &chatapi.GoogleAppsCardV1Action{
		Function:    b.Action.Function,
		Interaction: b.Action.Interaction,
	}
	for k, v := range b.Action.Parameters {
		action.Parameters = append(action.Parameters, &chatapi.GoogleAppsCardV1ActionParameter{
			Key:   k,
			Value: v,
		})
	}
	return &chatapi.GoogleAppsCardV1Button{
		Text:    b.Text,
		OnClick: &chatapi.GoogleAppsCardV1OnClick{Action: action},
	}
}
