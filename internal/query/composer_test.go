package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isearch-project/musebag/internal/log"
	"github.com/isearch-project/musebag/internal/weather"
)

// fakeFetcher returns canned weather data or an error.
type fakeFetcher struct {
	data  weather.Data
	err   error
	calls int

	gotDateTime string
	gotPosition string
}

func (f *fakeFetcher) Fetch(_ context.Context, datetime, position string) (weather.Data, error) {
	f.calls++
	f.gotDateTime = datetime
	f.gotPosition = position
	return f.data, f.err
}

func TestCompose_NilRequest(t *testing.T) {
	c := NewComposer(nil, log.NewNop())

	_, err := c.Compose(context.Background(), nil, "sid", "Guest")
	require.ErrorIs(t, err, ErrNoQuery)
}

func TestCompose_EmptyRequest(t *testing.T) {
	c := NewComposer(nil, log.NewNop())

	_, err := c.Compose(context.Background(), &Request{}, "sid", "Guest")
	require.ErrorIs(t, err, ErrNoQuery)
}

func TestCompose_TextAndTagNoContext(t *testing.T) {
	c := NewComposer(nil, log.NewNop())
	req := &Request{
		FileItems: []FileItem{{Type: "Text", Content: "cat"}},
		Tags:      []string{"animal"},
	}

	res, err := c.Compose(context.Background(), req, "sid-1", "Guest")
	require.NoError(t, err)

	assert.Contains(t, res.RUCoD, "<FreeText>cat</FreeText>")
	assert.Contains(t, res.RUCoD, `<MetaTag name="TagRecommendation" type="xsd:string">animal</MetaTag>`)
	assert.False(t, res.HasRWML(), "no datetime means no real-world document")
}

func TestCompose_ContentEntriesInOrder(t *testing.T) {
	c := NewComposer(nil, log.NewNop())
	req := &Request{
		FileItems: []FileItem{
			{Type: "Text", Content: "first"},
			{Type: "Image", RealType: "ImageType", Name: "a.jpg", Content: "http://x/a.jpg"},
			{Type: "Sketch", RealType: "SketchType", Name: "b.png", Content: "http://x/b.png"},
		},
	}

	res, err := c.Compose(context.Background(), req, "sid-2", "Guest")
	require.NoError(t, err)

	i1 := strings.Index(res.RUCoD, "first")
	i2 := strings.Index(res.RUCoD, "a.jpg")
	i3 := strings.Index(res.RUCoD, "b.png")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}

func TestCompose_CreatorDefaultsToGuest(t *testing.T) {
	c := NewComposer(nil, log.NewNop())

	req := &Request{FileItems: []FileItem{{Type: "Text", Content: "cats"}}}

	res, err := c.Compose(context.Background(), req, "sid-3", "")
	require.NoError(t, err)
	assert.Contains(t, res.RUCoD, "<Creator><Name>Guest</Name></Creator>")

	res, err = c.Compose(context.Background(), req, "sid-3", "user@example.org")
	require.NoError(t, err)
	assert.Contains(t, res.RUCoD, "<Creator><Name>user@example.org</Name></Creator>")
}

func TestCompose_DateTimeWithoutLocation(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := NewComposer(fetcher, log.NewNop())
	req := &Request{DateTime: "2012-05-14T09:30:00.000Z"}

	res, err := c.Compose(context.Background(), req, "sid-4", "Guest")
	require.NoError(t, err)

	require.True(t, res.HasRWML())
	assert.Contains(t, res.RWML, "<Date>2012-05-14T09:30:00.000Z</Date>")
	assert.NotContains(t, res.RWML, "<Location")
	assert.NotContains(t, res.RWML, "<Weather>")
	assert.Zero(t, fetcher.calls, "no location means no weather lookup")
}

func TestCompose_WeatherLookupSuccess(t *testing.T) {
	fetcher := &fakeFetcher{
		data: weather.Data{Condition: "Rain", Temperature: "12", Wind: "20", Humidity: "88"},
	}
	c := NewComposer(fetcher, log.NewNop())
	req := &Request{
		DateTime: "2012-05-14T09:30:00.000Z",
		Location: "50.97 11.03 120 5",
	}

	res, err := c.Compose(context.Background(), req, "sid-5", "Guest")
	require.NoError(t, err)

	require.True(t, res.HasRWML())
	assert.Equal(t, 1, fetcher.calls)
	// Raw values pass through; the weather client normalizes internally.
	assert.Equal(t, "2012-05-14T09:30:00.000Z", fetcher.gotDateTime)
	assert.Equal(t, "50.97 11.03 120 5", fetcher.gotPosition)

	assert.Contains(t, res.RWML, "<gml:pos>50.97 11.03 120 5</gml:pos>")
	assert.Contains(t, res.RWML, "<Condition>Rain</Condition>")
	assert.Contains(t, res.RWML, "<Humidity>88</Humidity>")
}

func TestCompose_WeatherLookupFailureDegrades(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("service down")}
	c := NewComposer(fetcher, log.NewNop())
	req := &Request{
		FileItems: []FileItem{{Type: "Text", Content: "sunset"}},
		DateTime:  "2012-05-14T09:30:00.000Z",
		Location:  "50.97 11.03",
	}

	res, err := c.Compose(context.Background(), req, "sid-6", "Guest")
	require.NoError(t, err, "weather failure must not fail composition")

	require.True(t, res.HasRWML())
	assert.Contains(t, res.RWML, `<Location type="gml">`)
	assert.NotContains(t, res.RWML, "<Weather>")
}
