package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationKeyIsSymmetric(t *testing.T) {
	assert.Equal(t, ConversationKey("alice", "bob"), ConversationKey("bob", "alice"))
	assert.Equal(t, "5:alice:bob", ConversationKey("bob", "alice"))
	assert.NotEqual(t, ConversationKey("alice", "bob"), ConversationKey("alice", "carol"))
}

func TestConversationKeyKeepsColonIdentitiesApart(t *testing.T) {
	pairs := [][2]string{{"a", "b:c"}, {"a:b", "c"}, {"a", "b"}, {"a:", "b"}, {"a", ":b"}, {"1:a", "b"}, {"1", "a:b"}}
	seen := map[string][2]string{}
	for _, p := range pairs {
		key := ConversationKey(p[0], p[1])
		prev, dup := seen[key]
		assert.False(t, dup, "%v and %v share key %q", prev, p, key)
		seen[key] = p
	}
}

func TestContentIsEmpty(t *testing.T) {
	cases := []struct {
		name    string
		content Content
		empty   bool
	}{
		{"text", TextContent("hi"), false},
		{"blank text", TextContent("  \n\t"), true},
		{"image", ImageContent("blob-1"), false},
		{"image without ref", ImageContent(""), true},
		{"file", FileContent("blob-2", 10, "application/pdf"), false},
		{"file without ref", FileContent(" ", 10, "application/pdf"), true},
		{"unknown kind", Content{Kind: "sticker", Text: "x"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.empty, tc.content.IsEmpty())
		})
	}
}

func TestTextThatLooksLikeATagStaysText(t *testing.T) {
	c := TextContent("[img]blob-1")
	assert.Equal(t, ContentText, c.Kind)
	assert.Empty(t, c.BlobRef)
}

func TestFriendshipOther(t *testing.T) {
	a, b := CanonicalPair("zed", "amy")
	f := Friendship{UserA: a, UserB: b}
	assert.Equal(t, "amy", f.UserA)
	assert.Equal(t, "zed", f.Other("amy"))
	assert.Equal(t, "amy", f.Other("zed"))
}
