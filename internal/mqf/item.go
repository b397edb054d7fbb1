package mqf

// UploadItem describes a locally stored media file awaiting distribution.
// Items are produced either by a multipart upload or by decoding a
// base64-embedded sketch image to temporary storage.
//
// Ownership transfers to Distribute, which rewrites Path to the externally
// returned reference and records the locally servable original under
// OriginPath. Subtype is the empty string unless the producer declared one.
type UploadItem struct {
	Path       string `json:"path"`
	OriginPath string `json:"originPath,omitempty"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Subtype    string `json:"subtype"`
	Size       int64  `json:"size"`
}
