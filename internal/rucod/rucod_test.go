package rucod

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Render_HeaderFields(t *testing.T) {
	doc := NewDocument("UserQuery-abc-0", "abc-0", "Guest")

	out, err := doc.Render()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<ContentObjectType>Query</ContentObjectType>`)
	assert.Contains(t, out, `<ContentObjectName xml:lang="en-US">UserQuery-abc-0</ContentObjectName>`)
	assert.Contains(t, out, `<ContentObjectID>abc-0</ContentObjectID>`)
	assert.Contains(t, out, `<Creator><Name>Guest</Name></Creator>`)
	// The companion RWML reference repeats the session id.
	assert.Contains(t, out, `<MetadataUri filetype="rwml">abc-0.rwml</MetadataUri>`)
	assert.Contains(t, out, `xmlns="http://www.isearch-project.eu/isearch/RUCoD"`)
}

func TestDocument_Render_ContentOrderPreserved(t *testing.T) {
	doc := NewDocument("q", "sid", "Guest")
	doc.AddText("cat")
	doc.AddMedia("Image", "ImageType", "photo.jpg", "http://example.org/photo.jpg")
	doc.AddText("dog")

	require.Equal(t, 3, doc.ContentCount())

	out, err := doc.Render()
	require.NoError(t, err)

	catIdx := strings.Index(out, "<FreeText>cat</FreeText>")
	imgIdx := strings.Index(out, "<MediaName>photo.jpg</MediaName>")
	dogIdx := strings.Index(out, "<FreeText>dog</FreeText>")
	require.True(t, catIdx >= 0 && imgIdx >= 0 && dogIdx >= 0, "missing entries in %s", out)
	assert.Less(t, catIdx, imgIdx)
	assert.Less(t, imgIdx, dogIdx)

	assert.Contains(t, out, `<MetaTag name="TypeTag" type="xsd:string">ImageType</MetaTag>`)
	assert.Contains(t, out, `<MediaUri>http://example.org/photo.jpg</MediaUri>`)
}

func TestDocument_Render_TagsAndEmotion(t *testing.T) {
	doc := NewDocument("q", "sid", "Guest")
	doc.AddTag("animal")
	doc.AddTag("pet")
	doc.SetEmotion("joy", 0.7)

	out, err := doc.Render()
	require.NoError(t, err)

	first := strings.Index(out, `<MetaTag name="TagRecommendation" type="xsd:string">animal</MetaTag>`)
	second := strings.Index(out, `<MetaTag name="TagRecommendation" type="xsd:string">pet</MetaTag>`)
	require.True(t, first >= 0 && second >= 0)
	assert.Less(t, first, second, "tags must keep input order")

	assert.Contains(t, out, `<UserInfoName>Emotion</UserInfoName>`)
	assert.Contains(t, out, `<category name="joy" intensity="0.7" set="everydayEmotions">`)
}

func TestDocument_Render_EmptySections(t *testing.T) {
	doc := NewDocument("q", "sid", "Guest")

	out, err := doc.Render()
	require.NoError(t, err)

	assert.NotContains(t, out, "TagRecommendation")
	assert.NotContains(t, out, "<UserInfo>")
	assert.NotContains(t, out, "<MultimediaContent")
}

func TestDocument_Render_EscapesTextContent(t *testing.T) {
	doc := NewDocument("q", "sid", "Guest")
	doc.AddText("cats & dogs <small>")

	out, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, out, "cats &amp; dogs &lt;small&gt;")
}

func TestRealWorldDocument_Render_DateOnly(t *testing.T) {
	doc := &RealWorldDocument{DateTime: "2012-05-14T09:00:00.000Z"}

	out, err := doc.Render()
	require.NoError(t, err)

	assert.Contains(t, out, "<RWML><ContextSlice>")
	assert.Contains(t, out, "<Date>2012-05-14T09:00:00.000Z</Date>")
	assert.NotContains(t, out, "<Location")
	assert.NotContains(t, out, "<Weather>")
	assert.False(t, doc.HasWeather())
}

func TestRealWorldDocument_Render_WithLocationAndWeather(t *testing.T) {
	doc := &RealWorldDocument{
		DateTime: "2012-05-14T09:00:00.000Z",
		Location: &Location{Position: "50.97 11.03 0 0"},
		Weather: &Weather{
			Condition:   "Clear",
			Temperature: "18",
			WindSpeed:   "5",
			Humidity:    "61",
		},
	}

	out, err := doc.Render()
	require.NoError(t, err)

	assert.Contains(t, out, `<Location type="gml">`)
	assert.Contains(t, out, `<gml:CircleByCenterPoint numArc="1">`)
	assert.Contains(t, out, `<gml:pos>50.97 11.03 0 0</gml:pos>`)
	assert.Contains(t, out, `<gml:radius uom="M">10</gml:radius>`)
	assert.Contains(t, out, "<Condition>Clear</Condition>")
	assert.Contains(t, out, "<Temperature>18</Temperature>")
	assert.Contains(t, out, "<WindSpeed>5</WindSpeed>")
	assert.Contains(t, out, "<Humidity>61</Humidity>")
	assert.True(t, doc.HasWeather())
}
