package models

import (
	"strconv"
	"strings"
	"time"
)

// ContentKind tags the payload carried by a message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
)

// Content is the tagged payload of a message. Text is set for ContentText,
// BlobRef (and for files Size and MimeType) for attachments.
type Content struct {
	Kind     ContentKind `json:"type"`
	Text     string      `json:"text,omitempty"`
	BlobRef  string      `json:"blob_ref,omitempty"`
	Size     int64       `json:"size,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
}

// TextContent builds a text payload.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// ImageContent builds an image payload.
func ImageContent(blobRef string) Content {
	return Content{Kind: ContentImage, BlobRef: blobRef}
}

// FileContent builds a file payload.
func FileContent(blobRef string, size int64, mimeType string) Content {
	return Content{Kind: ContentFile, BlobRef: blobRef, Size: size, MimeType: mimeType}
}

// IsEmpty reports whether the payload carries nothing worth storing.
// Unknown kinds count as empty.
func (c Content) IsEmpty() bool {
	switch c.Kind {
	case ContentText:
		return strings.TrimSpace(c.Text) == ""
	case ContentImage, ContentFile:
		return strings.TrimSpace(c.BlobRef) == ""
	default:
		return true
	}
}

// Message is an immutable entry of a conversation log.
type Message struct {
	ID              int64     `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	SenderID        string    `json:"sender_id"`
	RecipientID     string    `json:"recipient_id"`
	Content         Content   `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConversationKey derives the canonical key of the dialogue between a and b.
// Both directions yield the same key. The lower identity is length-prefixed
// so identities containing ':' cannot make two pairs share a key.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}
