package types

import "time"

// DeliveryState is the server-visible delivery stage of a message.
type DeliveryState string

const (
	DeliverySending   DeliveryState = "sending"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
	DeliveryFailed    DeliveryState = "failed"
)

// Rank orders the successful delivery stages. Failed and unknown values rank zero.
func (d DeliveryState) Rank() int {
	switch d {
	case DeliverySending:
		return 1
	case DeliverySent:
		return 2
	case DeliveryDelivered:
		return 3
	case DeliveryRead:
		return 4
	}
	return 0
}

// MessageState is the display state of a message.
type MessageState string

const (
	StateSending   MessageState = "sending"
	StateSent      MessageState = "sent"
	StateDelivered MessageState = "delivered"
	StateRead      MessageState = "read"
	StateError     MessageState = "error"
)

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

// LinkPreview is an unfurled link attached to a message.
type LinkPreview struct {
	URL         string `json:"url"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	YouTubeID   string `json:"youtubeId,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// EncryptedMediaDescriptor is the wire form of an attachment reference.
// URL is always empty; the reference travels in Ciphertext.
type EncryptedMediaDescriptor struct {
	URL        string    `json:"url"`
	Ciphertext string    `json:"ciphertext,omitempty"`
	Nonce      string    `json:"nonce,omitempty"`
	Type       MediaType `json:"type"`
	Format     string    `json:"format,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	Thumbnail  *string   `json:"thumbnail,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// MediaItem is an uploaded attachment before encryption.
type MediaItem struct {
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	Format    string    `json:"format,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Thumbnail *string   `json:"thumbnail,omitempty"`
	Name      string    `json:"name,omitempty"`
}

// DecryptedMedia is an attachment reference recovered on the client.
type DecryptedMedia struct {
	Source    string    `json:"source"`
	Type      MediaType `json:"type"`
	Format    string    `json:"format,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Thumbnail *string   `json:"thumbnail,omitempty"`
	Name      string    `json:"name,omitempty"`
}

// MessageMetadata is the non-secret metadata carried next to a ciphertext.
type MessageMetadata struct {
	Text     string                     `json:"text,omitempty"`
	Media    []EncryptedMediaDescriptor `json:"media,omitempty"`
	Links    []string                   `json:"links,omitempty"`
	Previews []LinkPreview              `json:"previews,omitempty"`
	Extras   map[string]any             `json:"extras,omitempty"`
}

// Clone returns a deep copy of m.
func (m MessageMetadata) Clone() MessageMetadata {
	out := m
	if m.Media != nil {
		out.Media = append([]EncryptedMediaDescriptor{}, m.Media...)
	}
	if m.Links != nil {
		out.Links = append([]string{}, m.Links...)
	}
	if m.Previews != nil {
		out.Previews = append([]LinkPreview{}, m.Previews...)
	}
	out.Extras = cloneExtras(m.Extras)
	return out
}

// StatusMetadata tracks delivery of a message. Zero fields are absent.
type StatusMetadata struct {
	Delivery    DeliveryState  `json:"delivery,omitempty"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	ErrorCode   string         `json:"errorCode,omitempty"`
	Retries     int            `json:"retries,omitempty"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// Clone returns a deep copy of s.
func (s StatusMetadata) Clone() StatusMetadata {
	out := s
	out.Extras = cloneExtras(s.Extras)
	return out
}

// State maps the delivery stage to a display state.
func (s StatusMetadata) State() MessageState {
	switch s.Delivery {
	case DeliveryRead:
		return StateRead
	case DeliveryDelivered:
		return StateDelivered
	case DeliverySending:
		return StateSending
	case DeliveryFailed:
		return StateError
	}
	return StateSent
}

// ChatMessage is a message as held by the client.
type ChatMessage struct {
	ID              *int64           `json:"id,omitempty"`
	ClientMessageID string           `json:"clientMessageId"`
	SenderID        UserID           `json:"senderId"`
	Ciphertext      string           `json:"ciphertext"`
	Nonce           string           `json:"nonce"`
	Plaintext       *string          `json:"plaintext"`
	Metadata        MessageMetadata  `json:"metadata"`
	Media           []DecryptedMedia `json:"media"`
	Status          StatusMetadata   `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	State           MessageState     `json:"state"`
	Error           string           `json:"error,omitempty"`
}

// Clone returns a deep copy of m.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.ID != nil {
		id := *m.ID
		out.ID = &id
	}
	if m.Plaintext != nil {
		pt := *m.Plaintext
		out.Plaintext = &pt
	}
	out.Metadata = m.Metadata.Clone()
	out.Status = m.Status.Clone()
	if m.Media != nil {
		out.Media = append([]DecryptedMedia{}, m.Media...)
	}
	return out
}

func cloneExtras(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
