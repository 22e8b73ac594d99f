package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<p>hello <b>nested <i>world</i></b></p>`,
	))
	require.NoError(t, err)

	text := GetText(doc.Find("p").Nodes[0])
	require.Equal(t, "hello nested world", text)
}

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<div>
			<a href="/services/1/annotate">  Service
				One  </a>
			<a href="https://other.example.com/page">Elsewhere</a>
		</div>
	`))
	require.NoError(t, err)

	base, err := url.Parse("https://edit.example.org")
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), base, doc.Find("a"))
	require.Equal(t, []Anchor{
		{Name: "Service One", Href: "https://edit.example.org/services/1/annotate"},
		{Name: "Elsewhere", Href: "https://other.example.com/page"},
	}, anchors)
}

func TestGetAnchorsNilBase(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a href="/relative">link</a>`,
	))
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), nil, doc.Find("a"))
	require.Equal(t, []Anchor{{Name: "link", Href: "/relative"}}, anchors)
}
