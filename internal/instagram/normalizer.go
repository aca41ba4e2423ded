package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sowerflow/sowerflow/internal/conversation"
)

var (
	ErrMalformedEvent = errors.New("malformed webhook event")
	// errOwnComment marks a comment the account wrote itself; it names no
	// counterpart to attach it to.
	errOwnComment = errors.New("comment authored by the account")
)

const (
	commentPreamble     = "La personne a laissé un commentaire public sous ta publication."
	liveCommentPreamble = "La personne a laissé un commentaire pendant ton live."
)

// CaptionResolver looks up the caption of a media object.
type CaptionResolver interface {
	Caption(ctx context.Context, accountID, mediaID, token string) string
}

// Item is one normalized event together with the conversation it belongs to.
type Item struct {
	AccountID     string
	CounterpartID string
	// Username is the counterpart handle when the platform sent one inline.
	Username string
	Event    conversation.Event
}

// Normalizer turns webhook entries into conversation events.
type Normalizer struct {
	appID    string
	captions CaptionResolver
}

// NewNormalizer builds a Normalizer. Echoes carrying appID are this
// application's own sends; captions may be nil to skip media lookups.
func NewNormalizer(appID string, captions CaptionResolver) *Normalizer {
	return &Normalizer{appID: appID, captions: captions}
}

// Normalize returns the events of entry in delivery order, messaging events
// first. Malformed sub-events are logged and skipped.
func (n *Normalizer) Normalize(ctx context.Context, entry Entry, token string) []Item {
	accountID := entry.ID.String()
	items := make([]Item, 0, len(entry.Messaging)+len(entry.Changes))

	for i, raw := range entry.Messaging {
		item, err := n.messaging(accountID, raw)
		if err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Int("index", i).Msg("skipping messaging event")
			continue
		}
		items = append(items, item)
	}

	for i, raw := range entry.Changes {
		item, err := n.change(ctx, accountID, epochMillis(entry.Time), raw, token)
		if errors.Is(err, errOwnComment) {
			log.Debug().Str("account_id", accountID).Int("index", i).Msg("skipping own comment")
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Int("index", i).Msg("skipping change event")
			continue
		}
		items = append(items, item)
	}

	return items
}

func (n *Normalizer) messaging(accountID string, raw json.RawMessage) (Item, error) {
	var m Messaging
	if err := json.Unmarshal(raw, &m); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if m.Sender.ID == "" || m.Recipient.ID == "" || m.Timestamp == 0 {
		return Item{}, fmt.Errorf("%w: missing sender, recipient or timestamp", ErrMalformedEvent)
	}

	ev := conversation.Event{
		OccurredAt: epochMillis(m.Timestamp),
		Direction:  conversation.DirectionReceived,
		RawPayload: raw,
	}
	counterpart := m.Sender.ID.String()
	if m.Sender.ID.String() == accountID {
		ev.Direction = conversation.DirectionSent
		counterpart = m.Recipient.ID.String()
	}

	switch {
	case m.Message != nil:
		if m.Message.MID == "" {
			return Item{}, fmt.Errorf("%w: message without mid", ErrMalformedEvent)
		}
		ev.Kind = conversation.KindMessage
		ev.DedupeKey = m.Message.MID
		ev.TextSummary = messageSummary(m.Message)
		ev.IsEcho = m.Message.IsEcho && (n.appID == "" || m.Message.AppID.String() != n.appID)
	case m.Reaction != nil:
		ev.Kind = conversation.KindReaction
		ev.TextSummary = reactionSummary(m.Reaction)
	case m.Postback != nil:
		ev.Kind = conversation.KindPostback
		ev.TextSummary = m.Postback.Title
	case m.Referral != nil:
		ev.Kind = conversation.KindReferral
		ev.TextSummary = fmt.Sprintf("[Arrivée via un lien (%s) : %s]", m.Referral.Source, m.Referral.Ref)
	case m.Optin != nil:
		ev.Kind = conversation.KindOptin
	case m.Read != nil:
		ev.Kind = conversation.KindSeen
	default:
		return Item{}, fmt.Errorf("%w: no known payload", ErrMalformedEvent)
	}

	return Item{AccountID: accountID, CounterpartID: counterpart, Event: ev}, nil
}

func (n *Normalizer) change(ctx context.Context, accountID string, at int64, raw json.RawMessage, token string) (Item, error) {
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		kind     conversation.Kind
		preamble string
	)
	switch c.Field {
	case FieldComments:
		kind, preamble = conversation.KindComment, commentPreamble
	case FieldLiveComments:
		kind, preamble = conversation.KindLiveComment, liveCommentPreamble
	default:
		return Item{}, fmt.Errorf("%w: unsupported field %q", ErrMalformedEvent, c.Field)
	}

	author := c.Value.From.ID.String()
	if author == "" {
		return Item{}, fmt.Errorf("%w: comment without author", ErrMalformedEvent)
	}

	if author == accountID {
		return Item{}, errOwnComment
	}

	ev := conversation.Event{
		OccurredAt: at,
		Kind:       kind,
		Direction:  conversation.DirectionReceived,
		DedupeKey:  c.Value.commentID(),
		RawPayload: raw,
	}

	var caption string
	if c.Value.Media.ID != "" && n.captions != nil {
		caption = n.captions.Caption(ctx, accountID, c.Value.Media.ID, token)
	}
	ev.TextSummary = commentSummary(preamble, caption, c.Value.Text)

	return Item{AccountID: accountID, CounterpartID: author, Username: c.Value.From.Username, Event: ev}, nil
}

func messageSummary(m *Message) string {
	parts := make([]string, 0, len(m.Attachments)+3)
	if m.ReplyTo != nil && m.ReplyTo.Story != nil {
		parts = append(parts, "[Réponse à ta story]")
	}
	if m.Referral != nil && m.Referral.AdsContextData != nil && m.Referral.AdsContextData.AdTitle != "" {
		parts = append(parts, fmt.Sprintf("[Venu via la publicité : %s]", m.Referral.AdsContextData.AdTitle))
	}
	if m.Text != "" {
		parts = append(parts, m.Text)
	}
	for _, a := range m.Attachments {
		name := a.Payload.Title
		if name == "" {
			name = a.Type
		}
		parts = append(parts, fmt.Sprintf("[Pièce jointe : %s]", name))
	}
	return strings.Join(parts, " ")
}

func reactionSummary(r *Reaction) string {
	if r.Action == "unreact" {
		return ""
	}
	emoji := r.Emoji
	if emoji == "" {
		emoji = r.Reaction
	}
	return fmt.Sprintf("[Réaction : %s]", emoji)
}

func commentSummary(preamble, caption, text string) string {
	var b strings.Builder
	b.WriteString(preamble)
	if caption != "" {
		b.WriteString("\nLégende de la publication : ")
		b.WriteString(caption)
	}
	b.WriteString("\nCommentaire : ")
	b.WriteString(text)
	return b.String()
}
