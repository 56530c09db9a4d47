package reel

import (
	"strings"
	"time"
)

// DownloadStatus records whether a reel has been downloaded. A reel
// which has not been downloaded carries the literal 'not_download',
// otherwise the status is the absolute path of the downloaded file.
type DownloadStatus string

const NotDownloaded DownloadStatus = "not_download"

func DownloadedTo(path string) DownloadStatus { return DownloadStatus(path) }

func (status DownloadStatus) IsDownloaded() bool {
	return status != NotDownloaded && strings.TrimSpace(string(status)) != ""
}

// Path returns the location of the downloaded file, or an empty
// string if the reel has not been downloaded.
func (status DownloadStatus) Path() string {
	if !status.IsDownloaded() {
		return ""
	}

	return string(status)
}

type (
	// ExtractedPage is a Facebook page which has been imported from
	// an uploaded scrape document. Pages are unique by their slug.
	ExtractedPage struct {
		ID                    int64      `db:"id" json:"id"`
		PageName              string     `db:"page_name" json:"pageName"`
		Slug                  string     `db:"slug" json:"slug"`
		URL                   string     `db:"url" json:"url"`
		FollowersText         *string    `db:"followers_text" json:"followersText"`
		LikesText             *string    `db:"likes_text" json:"likesText"`
		ImageRelativePath     *string    `db:"image_relative_path" json:"imageUrl"`
		DownloadLocation      *string    `db:"download_location" json:"downloadLocation"`
		LastDownloadTimestamp *time.Time `db:"last_download_timestamp" json:"lastDownloadTimestamp"`
		CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	}

	// PageSummary is an extracted page alongside the aggregate counts
	// of the rows it owns.
	PageSummary struct {
		ExtractedPage
		JsonFileCount   int `db:"json_file_count" json:"jsonFileCount"`
		ReelCount       int `db:"reel_count" json:"reelCount"`
		DownloadedCount int `db:"downloaded_count" json:"downloadedVideoCount"`
	}

	SourceJsonFile struct {
		ID         int64     `db:"id" json:"id"`
		PageID     int64     `db:"page_id" json:"pageId"`
		StoredPath string    `db:"stored_path" json:"storedPath"`
		CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	}

	Reel struct {
		ID               int64          `db:"id" json:"id"`
		PageID           int64          `db:"page_id" json:"pageId"`
		SourceJsonFileID int64          `db:"source_json_file_id" json:"sourceJsonFileId"`
		Href             string         `db:"href" json:"href"`
		ReelPageName     string         `db:"reel_page_name" json:"reelPage"`
		ReelPageSlug     string         `db:"reel_page_slug" json:"reelPageSlug"`
		ReelURL          string         `db:"reel_url" json:"reelUrl"`
		ThumbnailPath    *string        `db:"thumbnail_path" json:"thumbnail"`
		EngagementText   *string        `db:"engagement_text" json:"engagementText"`
		DownloadStatus   DownloadStatus `db:"download_status" json:"downloadStatus"`
	}

	// DownloadedVideo is the record of a reel which has been downloaded to
	// disk by the reconciler. Edits reference these rows as their source.
	DownloadedVideo struct {
		ID             int64     `db:"id" json:"id"`
		OriginalHref   string    `db:"original_href" json:"originalHref"`
		CanonicalURL   string    `db:"canonical_url" json:"canonicalUrl"`
		SourcePageURL  string    `db:"source_page_url" json:"sourcePageUrl"`
		SourcePageName string    `db:"source_page_name" json:"sourcePageName"`
		SourcePageSlug string    `db:"source_page_slug" json:"sourcePageSlug"`
		RemoteSdURL    *string   `db:"remote_sd_url" json:"remoteSdUrl"`
		RemoteHdURL    *string   `db:"remote_hd_url" json:"remoteHdUrl"`
		Title          *string   `db:"title" json:"title"`
		Thumbnail      *string   `db:"thumbnail" json:"thumbnail"`
		LocalFilePath  string    `db:"local_file_path" json:"localFilePath"`
		DurationMs     *int64    `db:"duration_ms" json:"durationMs"`
		EngagementText *string   `db:"engagement_text" json:"engagementText"`
		CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	}
)

// CanonicalURL is the public Facebook URL of the reel.
func (reel *Reel) CanonicalURL() string {
	return "https://www.facebook.com" + reel.Href
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	return &s
}
