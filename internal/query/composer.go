// Package query assembles RUCoD query documents from incoming multimodal
// query requests.
//
// Composition is a single forward chain: header and content entries are
// built synchronously, then — only when the request carries real-world
// context — the weather lookup runs before the companion RWML document is
// finalized. A failed lookup degrades to an RWML document without a
// weather fragment; it never fails the composition.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/isearch-project/musebag/internal/log"
	"github.com/isearch-project/musebag/internal/rucod"
	"github.com/isearch-project/musebag/internal/weather"
)

// ErrNoQuery indicates Compose was called without a request. No async work
// is started in that case.
var ErrNoQuery = errors.New("no query")

// FileItem is one entry of a multimodal query. Plain text items carry the
// literal text in Content; all other kinds carry a content URI there.
// JSON field casing follows the front-end's query serialization.
type FileItem struct {
	Type     string `json:"Type"`
	RealType string `json:"RealType"`
	Name     string `json:"name"`
	Content  string `json:"Content"`
}

// Emotion is the optional emotion annotation of a query.
type Emotion struct {
	Name      string  `json:"name"`
	Intensity float64 `json:"intensity"`
}

// Request is an incoming multimodal query. FileItems keep the order the
// user arranged them in; tags, emotion and real-world context are optional.
type Request struct {
	FileItems []FileItem `json:"fileItems"`
	Tags      []string   `json:"tags"`
	Emotion   *Emotion   `json:"emotion"`
	DateTime  string     `json:"datetime"`
	Location  string     `json:"location"`
}

// Empty reports whether the request carries no query fragment at all.
func (r *Request) Empty() bool {
	return len(r.FileItems) == 0 && len(r.Tags) == 0 && r.Emotion == nil && r.DateTime == ""
}

// Result carries the rendered documents ready for submission. RWML is
// empty when the request carried no timestamp.
type Result struct {
	RUCoD string
	RWML  string
}

// HasRWML reports whether a companion real-world document was emitted.
func (r Result) HasRWML() bool { return r.RWML != "" }

// WeatherFetcher is the weather lookup consumed by the composer.
// *weather.Client implements it.
type WeatherFetcher interface {
	Fetch(ctx context.Context, datetime, position string) (weather.Data, error)
}

// Composer builds query documents. Create instances with NewComposer.
type Composer struct {
	weather WeatherFetcher
	logger  log.Logger
}

// NewComposer creates a composer. fetcher may be nil, in which case
// real-world documents are emitted without weather fragments.
func NewComposer(fetcher WeatherFetcher, logger log.Logger) *Composer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Composer{weather: fetcher, logger: logger}
}

// Compose assembles the RUCoD document for req. sessionID is the external
// session id shared with the query formulator; creator identifies the user
// ("Guest" for unauthenticated sessions). The returned result carries both
// rendered documents; submission is the caller's concern.
func (c *Composer) Compose(ctx context.Context, req *Request, sessionID, creator string) (Result, error) {
	if req == nil || req.Empty() {
		return Result{}, ErrNoQuery
	}
	if creator == "" {
		creator = "Guest"
	}

	doc := rucod.NewDocument("UserQuery-"+sessionID, sessionID, creator)

	for _, item := range req.FileItems {
		if item.Type == "Text" {
			doc.AddText(item.Content)
			continue
		}
		doc.AddMedia(item.Type, item.RealType, item.Name, item.Content)
	}

	for _, tag := range req.Tags {
		doc.AddTag(tag)
	}

	if req.Emotion != nil {
		doc.SetEmotion(req.Emotion.Name, req.Emotion.Intensity)
	}

	rendered, err := doc.Render()
	if err != nil {
		return Result{}, fmt.Errorf("composing query %s: %w", sessionID, err)
	}

	// Without a timestamp there is no real-world context and composition
	// completes synchronously.
	if req.DateTime == "" {
		return Result{RUCoD: rendered}, nil
	}

	rwml := &rucod.RealWorldDocument{DateTime: req.DateTime}
	if req.Location != "" {
		rwml.Location = &rucod.Location{Position: req.Location}
		rwml.Weather = c.fetchWeather(ctx, sessionID, req.DateTime, req.Location)
	}

	renderedRWML, err := rwml.Render()
	if err != nil {
		return Result{}, fmt.Errorf("composing real-world context for query %s: %w", sessionID, err)
	}

	return Result{RUCoD: rendered, RWML: renderedRWML}, nil
}

// fetchWeather performs the best-effort lookup. A nil return means the RWML
// document is emitted without a weather fragment.
func (c *Composer) fetchWeather(ctx context.Context, sessionID, datetime, position string) *rucod.Weather {
	if c.weather == nil {
		return nil
	}

	data, err := c.weather.Fetch(ctx, datetime, position)
	if err != nil {
		c.logger.Info("no weather data found for query", "session", sessionID, "error", err)
		return nil
	}

	return &rucod.Weather{
		Condition:   data.Condition,
		Temperature: data.Temperature,
		WindSpeed:   data.Wind,
		Humidity:    data.Humidity,
	}
}
