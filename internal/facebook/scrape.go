package facebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidDocument = errors.New("invalid scrape document")

// scrapeDocumentSchema describes the JSON produced by the browser-side
// page scraper. Either the page info or the reel list must be present.
const scrapeDocumentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"anyOf": [
		{"required": ["fbPageInfo"]},
		{"required": ["reels"]}
	],
	"properties": {
		"fbPageInfo": {
			"type": ["object", "null"],
			"properties": {
				"pageName":      {"type": ["string", "null"]},
				"slug":          {"type": ["string", "null"]},
				"url":           {"type": ["string", "null"]},
				"followersText": {"type": ["string", "null"]},
				"likesText":     {"type": ["string", "null"]},
				"imageUrl":      {"type": ["string", "null"]}
			}
		},
		"reels": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"href":           {"type": ["string", "null"]},
					"reelPage":       {"type": ["string", "null"]},
					"reelPageslug":   {"type": ["string", "null"]},
					"reelUrl":        {"type": ["string", "null"]},
					"src":            {"type": ["string", "null"]},
					"targetSpanText": {"type": ["string", "null"]}
				}
			}
		}
	}
}`

var compiledScrapeSchema = mustCompileSchema(scrapeDocumentSchema)

type (
	ScrapedPageInfo struct {
		PageName      string `json:"pageName"`
		Slug          string `json:"slug"`
		URL           string `json:"url"`
		FollowersText string `json:"followersText"`
		LikesText     string `json:"likesText"`
		ImageURL      string `json:"imageUrl"`
	}

	ScrapedReel struct {
		Href           string `json:"href"`
		ReelPage       string `json:"reelPage"`
		ReelPageSlug   string `json:"reelPageslug"`
		ReelURL        string `json:"reelUrl"`
		Src            string `json:"src"`
		TargetSpanText string `json:"targetSpanText"`
	}

	// ScrapeDocument is the uploaded output of the browser-side scraper for
	// a single Facebook page.
	ScrapeDocument struct {
		PageInfo *ScrapedPageInfo `json:"fbPageInfo"`
		Reels    []ScrapedReel    `json:"reels"`
	}
)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid scrape document schema: %v", err))
	}

	return compiled
}

// ParseScrapeDocument validates the raw JSON against the scrape document
// schema before decoding it.
func ParseScrapeDocument(raw []byte) (*ScrapeDocument, error) {
	result, err := compiledScrapeSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(errs, "; "))
	}

	var doc ScrapeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.PageInfo == nil && doc.Reels == nil {
		return nil, fmt.Errorf("%w: JSON must contain either fbPageInfo or reels", ErrInvalidDocument)
	}

	return &doc, nil
}

// NormalizedPageName returns the page name trimmed of whitespace, with any
// non-breaking spaces replaced. Documents without page info are named
// 'Unknown Page', and a blank name is 'Unknown'.
func (doc *ScrapeDocument) NormalizedPageName() string {
	if doc.PageInfo == nil {
		return "Unknown Page"
	}

	name := strings.TrimSpace(doc.PageInfo.PageName)
	if name == "" {
		return "Unknown"
	}

	return strings.ReplaceAll(name, "\u00a0", " ")
}

// Slug returns the page slug, defaulting to 'unknown' for documents
// that carry no page info at all.
func (doc *ScrapeDocument) Slug() string {
	if doc.PageInfo == nil {
		return "unknown"
	}

	return doc.PageInfo.Slug
}
