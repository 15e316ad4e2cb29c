/**
 * OCR Types - Shared data structures for OCR operations
 *
 * Raw recognition output (OCRPage, OCRWord) and the aligned output of a
 * document run (Token, ProcessResult).
 */

package processor

// NoConfidence is the engine's sentinel for "no text at this position".
const NoConfidence = -1.0

// OCRPage represents the engine output for a single page image
type OCRPage struct {
	PageNumber int
	Text       string
	Confidence float64
	Words      []OCRWord
}

// OCRWord represents a single word with bounding box
type OCRWord struct {
	Text        string
	Confidence  float64
	BoundingBox BoundingBox
}

// BoundingBox represents coordinates of a region
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// PageSize is the pixel size of the page image used for recognition.
type PageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Token is a recognized word with its span in the document text. Start and
// End are inclusive rune offsets.
type Token struct {
	ID       int      `json:"id"`
	Text     string   `json:"text"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Length   int      `json:"length"`
	Top      int      `json:"top"`
	Left     int      `json:"left"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Conf     float64  `json:"conf"`
	PageNum  int      `json:"pageNum"`
	PageSize PageSize `json:"pageSize"`
	Selected bool     `json:"selected"`
}

// PageReport summarizes what happened to one page during a run
type PageReport struct {
	PageNum    int      `json:"pageNum"`
	PageSize   PageSize `json:"pageSize"`
	Confidence float64  `json:"confidence"` // mean word confidence, sentinel words excluded
	RawWords   int      `json:"rawWords"`
	Tokens     int      `json:"tokens"`
	Filtered   int      `json:"filtered"`
	Skipped    []string `json:"skipped,omitempty"`
}

// ProcessResult represents the processing result
type ProcessResult struct {
	RunID            string       `json:"runId"`
	JobID            string       `json:"jobId,omitempty"`
	Tokens           []Token      `json:"tokens"`
	Text             string       `json:"text"`
	Pages            []PageReport `json:"pages"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}
