package reel

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var imageExtension = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,5}$`)

const (
	pageImagePrefix = "page_"
	reelImagePrefix = "reel_"
)

type (
	ImageFetcher interface {
		Open(ctx context.Context, url string) (io.ReadCloser, error)
	}

	importStore interface {
		SaveScrapeImport(page *ExtractedPage, storedPath string, reels []*Reel) (*SourceJsonFile, int, error)
	}

	importFileStore interface {
		Place(category storage.Category, source io.Reader, desiredName string) (string, error)
		Remove(path string)
	}

	// Importer ingests scrape documents uploaded by the user. The images
	// referenced by the document are fetched and stored locally, and the page
	// and its reels are persisted. Importing the same document twice does not
	// duplicate the page or any of its reels.
	Importer struct {
		store  importStore
		files  importFileStore
		images ImageFetcher
	}

	ImportResult struct {
		Page          *ExtractedPage  `json:"page"`
		SourceFile    *SourceJsonFile `json:"sourceFile"`
		ReelsReceived int             `json:"reelsReceived"`
		ReelsInserted int             `json:"reelsInserted"`
	}
)

func NewImporter(store importStore, files importFileStore, images ImageFetcher) *Importer {
	return &Importer{store: store, files: files, images: images}
}

// Import validates and persists the raw scrape document. The document
// itself is kept in the JSON uploads directory for provenance, and is
// removed again should the import fail.
func (importer *Importer) Import(ctx context.Context, raw []byte, originalName string) (*ImportResult, error) {
	doc, err := facebook.ParseScrapeDocument(raw)
	if err != nil {
		return nil, err
	}

	storedPath, err := importer.files.Place(storage.JsonUploads, bytes.NewReader(raw), jsonUploadName(originalName))
	if err != nil {
		return nil, err
	}

	page := importer.buildPage(ctx, doc)
	reels := make([]*Reel, 0, len(doc.Reels))
	for _, scraped := range doc.Reels {
		reels = append(reels, importer.buildReel(ctx, scraped))
	}

	sourceFile, inserted, err := importer.store.SaveScrapeImport(page, storedPath, reels)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to import scrape document %s: %v\n", originalName, err)
		importer.files.Remove(storedPath)
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Imported page %q (%s): %d of %d reel(s) are new\n", page.PageName, page.Slug, inserted, len(reels))
	return &ImportResult{Page: page, SourceFile: sourceFile, ReelsReceived: len(reels), ReelsInserted: inserted}, nil
}

func (importer *Importer) buildPage(ctx context.Context, doc *facebook.ScrapeDocument) *ExtractedPage {
	page := &ExtractedPage{PageName: doc.NormalizedPageName(), Slug: doc.Slug()}
	if page.Slug == "" {
		page.Slug = "unknown"
	}

	if info := doc.PageInfo; info != nil {
		page.URL = info.URL
		page.FollowersText = optionalString(info.FollowersText)
		page.LikesText = optionalString(info.LikesText)
		if info.ImageURL != "" {
			image := importer.localImage(ctx, info.ImageURL, pageImagePrefix)
			page.ImageRelativePath = &image
		}
	}

	return page
}

func (importer *Importer) buildReel(ctx context.Context, scraped facebook.ScrapedReel) *Reel {
	reel := &Reel{
		Href:           scraped.Href,
		ReelPageName:   scraped.ReelPage,
		ReelPageSlug:   scraped.ReelPageSlug,
		ReelURL:        scraped.ReelURL,
		EngagementText: optionalString(scraped.TargetSpanText),
		DownloadStatus: NotDownloaded,
	}

	if scraped.Src != "" {
		thumb := importer.localImage(ctx, scraped.Src, reelImagePrefix)
		reel.ThumbnailPath = &thumb
	}

	return reel
}

// localImage downloads the image at the URL in to the images directory
// and returns its root-relative path. If the image cannot be fetched the
// original URL is returned instead.
func (importer *Importer) localImage(ctx context.Context, imageURL string, prefix string) string {
	name, err := imageName(imageURL, prefix)
	if err != nil {
		log.Emit(logger.WARNING, "Cannot derive image name for %s: %v\n", imageURL, err)
		return imageURL
	}

	body, err := importer.images.Open(ctx, imageURL)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to download image %s, keeping remote URL: %v\n", imageURL, err)
		return imageURL
	}
	defer body.Close()

	rel, err := importer.files.Place(storage.Images, body, name)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to store image %s, keeping remote URL: %v\n", imageURL, err)
		return imageURL
	}

	return rel
}

func imageName(imageURL string, prefix string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	ext := path.Ext(parsed.Path)
	if !imageExtension.MatchString(ext) {
		ext = ".jpg"
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}

	return prefix + hex.EncodeToString(suffix) + ext, nil
}

func jsonUploadName(originalName string) string {
	base := filepath.Base(originalName)
	stem := storage.SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" || stem == "_" {
		stem = "scrape"
	}

	return fmt.Sprintf("%s_%d.json", stem, time.Now().UnixMilli())
}
