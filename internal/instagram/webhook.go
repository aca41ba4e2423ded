package instagram

import (
	"bytes"
	"encoding/json"
)

// Delivery is one webhook POST body.
type Delivery struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for one platform account. Sub-events are
// kept raw so a malformed one can be skipped without losing its siblings.
type Entry struct {
	ID        ID                `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging,omitempty"`
	Changes   []json.RawMessage `json:"changes,omitempty"`
}

// ID accepts platform ids encoded either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

type Party struct {
	ID ID `json:"id"`
}

type Messaging struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Reaction  *Reaction `json:"reaction,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
	Referral  *Referral `json:"referral,omitempty"`
	Optin     *Optin    `json:"optin,omitempty"`
	Read      *Read     `json:"read,omitempty"`
}

type Message struct {
	MID           string       `json:"mid"`
	Text          string       `json:"text,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	IsEcho        bool         `json:"is_echo,omitempty"`
	IsDeleted     bool         `json:"is_deleted,omitempty"`
	IsUnsupported bool         `json:"is_unsupported,omitempty"`
	AppID         ID           `json:"app_id,omitempty"`
	QuickReply    *struct {
		Payload string `json:"payload"`
	} `json:"quick_reply,omitempty"`
	Referral *AdReferral `json:"referral,omitempty"`
	ReplyTo  *ReplyTo    `json:"reply_to,omitempty"`
}

type Attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL   string `json:"url"`
		Title string `json:"title,omitempty"`
	} `json:"payload"`
}

type AdReferral struct {
	Ref            string `json:"ref"`
	AdID           string `json:"ad_id"`
	Source         string `json:"source"`
	Type           string `json:"type"`
	AdsContextData *struct {
		AdTitle string `json:"ad_title"`
	} `json:"ads_context_data,omitempty"`
}

type ReplyTo struct {
	MID   string `json:"mid,omitempty"`
	Story *struct {
		URL string `json:"url"`
		ID  string `json:"id"`
	} `json:"story,omitempty"`
}

type Reaction struct {
	MID      string `json:"mid"`
	Action   string `json:"action"`
	Reaction string `json:"reaction,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

type Postback struct {
	MID     string `json:"mid"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type Referral struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Type   string `json:"type,omitempty"`
}

type Optin struct {
	Type    string `json:"type,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type Read struct {
	MID string `json:"mid"`
}

const (
	FieldComments     = "comments"
	FieldLiveComments = "live_comments"
)

type Change struct {
	Field string        `json:"field"`
	Value CommentChange `json:"value"`
}

type CommentChange struct {
	From struct {
		ID       ID     `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	ID        string `json:"id"`
	CommentID string `json:"comment_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Text      string `json:"text"`
	Media     struct {
		ID               string `json:"id"`
		AdID             string `json:"ad_id,omitempty"`
		AdTitle          string `json:"ad_title,omitempty"`
		OriginalMediaID  string `json:"original_media_id,omitempty"`
		MediaProductType string `json:"media_product_type,omitempty"`
	} `json:"media"`
}

func (c CommentChange) commentID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.CommentID
}

// epochMillis accepts either seconds or milliseconds.
func epochMillis(t int64) int64 {
	if t > 0 && t < 1_000_000_000_000 {
		return t * 1000
	}
	return t
}

func (id ID) String() string { return string(id) }
