package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	desc := "Intro line\r\n" +
		"  title :  The Show  \n" +
		"<b>Image:</b> https://cdn.example.com/a.png<br/>" +
		"Ticket: https://tix.example.com/1\n" +
		"Tickets: https://tix.example.com/2\n" +
		"Venue: Hall B"

	tags := ParseTags(desc)

	assert.Len(t, tags, 3)

	title, ok := tags.Get(KeyTitle)
	assert.True(t, ok)
	assert.Equal(t, "The Show", title.Value)

	img, ok := tags.Get(KeyImage)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.png", img.Value)
	assert.Equal(t, "<b>Image:</b> https://cdn.example.com/a.png", img.Line)

	tix, ok := tags.Get(KeyTickets)
	assert.True(t, ok)
	assert.Equal(t, "https://tix.example.com/1", tix.Value, "first occurrence wins")
}

func TestParseTags_Empty(t *testing.T) {
	assert.Empty(t, ParseTags(""))
	assert.Empty(t, ParseTags("no tags\njust text"))

	_, ok := ParseTags("Title:").Get(KeyTitle)
	assert.False(t, ok)
}

func TestFirstTextLine(t *testing.T) {
	line, ok := firstTextLine("\n   \n<p>html</p>\nTitle: tagged\nPlain &quot;text&quot;\n")
	assert.True(t, ok)
	assert.Equal(t, `Plain "text"`, line)

	_, ok = firstTextLine("<div>a</div><p>b</p>")
	assert.False(t, ok)
}
