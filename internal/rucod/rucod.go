// Package rucod builds RUCoD query documents and their companion RWML
// real-world-context documents for submission to the multimodal query
// formulator.
//
// The wire format is the I-SEARCH RUCoD XML schema. Documents are assembled
// from typed builders and rendered with encoding/xml, so field placement is
// decided by struct layout rather than placeholder substitution.
package rucod

import (
	"encoding/xml"
	"fmt"
)

// XML namespace declarations carried on the RUCoD root element.
const (
	nsRUCoD = "http://www.isearch-project.eu/isearch/RUCoD"
	nsGML   = "http://www.opengis.net/gml"
	nsXSD   = "http://www.w3.org/2001/XMLSchema"
	nsXSI   = "http://www.w3.org/2001/XMLSchema-instance"
)

// MetaTag names used in query documents.
const (
	TagTypeTag           = "TypeTag"
	TagTagRecommendation = "TagRecommendation"
)

// xsdString is the schema type recorded on every MetaTag.
const xsdString = "xsd:string"

// MetaTag is a typed key/value annotation.
type MetaTag struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// MediaLocator points at the content of a media item.
type MediaLocator struct {
	MediaURI string `xml:"MediaUri"`
}

// MultimediaContent is one content entry of a query document. Text entries
// carry FreeText only; media entries carry name, type tag and locator.
type MultimediaContent struct {
	Type         string        `xml:"type,attr"`
	FreeText     string        `xml:"FreeText,omitempty"`
	MediaName    string        `xml:"MediaName,omitempty"`
	MetaTag      *MetaTag      `xml:"MetaTag,omitempty"`
	MediaLocator *MediaLocator `xml:"MediaLocator,omitempty"`
}

// EmotionCategory is the emotion annotation attached to a query.
// The set attribute is fixed to the everydayEmotions vocabulary.
type EmotionCategory struct {
	Name      string  `xml:"name,attr"`
	Intensity float64 `xml:"intensity,attr"`
	Set       string  `xml:"set,attr"`
}

type emotion struct {
	Category EmotionCategory `xml:"category"`
}

type userInfo struct {
	UserInfoName string  `xml:"UserInfoName"`
	Emotion      emotion `xml:"emotion"`
}

type creator struct {
	Name string `xml:"Creator>Name"`
}

type metadataURI struct {
	FileType string `xml:"filetype,attr"`
	Value    string `xml:",chardata"`
}

type realWorldInfo struct {
	MetadataURI metadataURI `xml:"MetadataUri"`
}

type contentObjectName struct {
	Lang  string `xml:"xml:lang,attr"`
	Value string `xml:",chardata"`
}

type contentObjectTypes struct {
	MultimediaContent []MultimediaContent `xml:"MultimediaContent"`
	RealWorldInfo     realWorldInfo       `xml:"RealWorldInfo"`
	UserInfo          *userInfo           `xml:"UserInfo,omitempty"`
}

type header struct {
	ContentObjectType string             `xml:"ContentObjectType"`
	ContentObjectName contentObjectName  `xml:"ContentObjectName"`
	ContentObjectID   string             `xml:"ContentObjectID"`
	CreationInfo      creator            `xml:"ContentObjectCreationInformation"`
	Tags              []MetaTag          `xml:"Tags>MetaTag"`
	Types             contentObjectTypes `xml:"ContentObjectTypes"`
}

type document struct {
	XMLName  xml.Name `xml:"RUCoD"`
	NS       string   `xml:"xmlns,attr"`
	NSGML    string   `xml:"xmlns:gml,attr"`
	NSXSD    string   `xml:"xmlns:xsd,attr"`
	NSXSI    string   `xml:"xmlns:xsi,attr"`
	Header   header   `xml:"Header"`
}

// Document is a RUCoD query document under construction. The zero value is
// not usable; create instances with NewDocument.
type Document struct {
	doc document
}

// NewDocument creates a query document. sessionID becomes the content
// object ID and the reference to the companion RWML document; creatorName
// identifies the user ("Guest" for unauthenticated sessions).
func NewDocument(name, sessionID, creatorName string) *Document {
	return &Document{
		doc: document{
			NS:    nsRUCoD,
			NSGML: nsGML,
			NSXSD: nsXSD,
			NSXSI: nsXSI,
			Header: header{
				ContentObjectType: "Query",
				ContentObjectName: contentObjectName{Lang: "en-US", Value: name},
				ContentObjectID:   sessionID,
				CreationInfo:      creator{Name: creatorName},
				Types: contentObjectTypes{
					RealWorldInfo: realWorldInfo{
						MetadataURI: metadataURI{
							FileType: "rwml",
							Value:    sessionID + ".rwml",
						},
					},
				},
			},
		},
	}
}

// AddText appends a free-text content entry.
func (d *Document) AddText(text string) {
	d.doc.Header.Types.MultimediaContent = append(d.doc.Header.Types.MultimediaContent,
		MultimediaContent{Type: "Text", FreeText: text})
}

// AddMedia appends a typed media content entry. realType is recorded as a
// TypeTag annotation; uri locates the media content.
func (d *Document) AddMedia(mediaType, realType, name, uri string) {
	d.doc.Header.Types.MultimediaContent = append(d.doc.Header.Types.MultimediaContent,
		MultimediaContent{
			Type:         mediaType,
			MediaName:    name,
			MetaTag:      &MetaTag{Name: TagTypeTag, Type: xsdString, Value: realType},
			MediaLocator: &MediaLocator{MediaURI: uri},
		})
}

// AddTag appends one tag-recommendation entry to the header.
func (d *Document) AddTag(tag string) {
	d.doc.Header.Tags = append(d.doc.Header.Tags,
		MetaTag{Name: TagTagRecommendation, Type: xsdString, Value: tag})
}

// SetEmotion records the emotion annotation. At most one emotion entry is
// emitted; a later call replaces an earlier one.
func (d *Document) SetEmotion(name string, intensity float64) {
	d.doc.Header.Types.UserInfo = &userInfo{
		UserInfoName: "Emotion",
		Emotion:      emotion{Category: EmotionCategory{Name: name, Intensity: intensity, Set: "everydayEmotions"}},
	}
}

// ContentCount reports the number of content entries added so far.
func (d *Document) ContentCount() int {
	return len(d.doc.Header.Types.MultimediaContent)
}

// Render serializes the document to its XML wire form, including the XML
// declaration expected by the query formulator.
func (d *Document) Render() (string, error) {
	out, err := xml.Marshal(&d.doc)
	if err != nil {
		return "", fmt.Errorf("render rucod: %w", err)
	}
	return xml.Header[:len(xml.Header)-1] + string(out), nil
}

// Location is the GML location fragment of an RWML document. Position is
// the raw geodetic position string as supplied by the client.
type Location struct {
	Position string
	// RadiusM is the circle radius in meters around the position.
	RadiusM int
}

// Weather is the best-effort weather fragment of an RWML document.
type Weather struct {
	Condition   string `xml:"Condition"`
	Temperature string `xml:"Temperature"`
	WindSpeed   string `xml:"WindSpeed"`
	Humidity    string `xml:"Humidity"`
}

type gmlRadius struct {
	UOM   string `xml:"uom,attr"`
	Value int    `xml:",chardata"`
}

type gmlCircle struct {
	NumArc int       `xml:"numArc,attr"`
	Pos    string    `xml:"gml:pos"`
	Radius gmlRadius `xml:"gml:radius"`
}

type rwmlLocation struct {
	Type   string    `xml:"type,attr"`
	Circle gmlCircle `xml:"gml:CircleByCenterPoint"`
}

type rwmlDateTime struct {
	Date string `xml:"Date"`
}

type contextSlice struct {
	DateTime rwmlDateTime  `xml:"DateTime"`
	Location *rwmlLocation `xml:"Location,omitempty"`
	Weather  *Weather      `xml:"Weather,omitempty"`
}

type rwml struct {
	XMLName      xml.Name     `xml:"RWML"`
	ContextSlice contextSlice `xml:"ContextSlice"`
}

// RealWorldDocument is the companion context document of a query. It exists
// only when the query carried a timestamp; location and weather fragments
// are optional.
type RealWorldDocument struct {
	DateTime string
	Location *Location
	Weather  *Weather
}

// Render serializes the RWML document to its XML wire form.
func (r *RealWorldDocument) Render() (string, error) {
	doc := rwml{ContextSlice: contextSlice{DateTime: rwmlDateTime{Date: r.DateTime}}}
	if r.Location != nil {
		radius := r.Location.RadiusM
		if radius == 0 {
			radius = 10
		}
		doc.ContextSlice.Location = &rwmlLocation{
			Type: "gml",
			Circle: gmlCircle{
				NumArc: 1,
				Pos:    r.Location.Position,
				Radius: gmlRadius{UOM: "M", Value: radius},
			},
		}
	}
	if r.Weather != nil {
		doc.ContextSlice.Weather = r.Weather
	}

	out, err := xml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("render rwml: %w", err)
	}
	return string(out), nil
}

// HasWeather reports whether the weather fragment is populated.
func (r *RealWorldDocument) HasWeather() bool {
	return r != nil && r.Weather != nil && *r.Weather != (Weather{})
}
