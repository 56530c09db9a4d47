package page

import (
	"fmt"

	"github.com/hbomb79/Mediadesk/internal/database"
)

// Page is a Facebook page managed by the configured user, as
// reported by the Graph API. The access token is never serialised.
type Page struct {
	ID             int64   `db:"id" json:"id"`
	ExternalPageID string  `db:"external_page_id" json:"pageId"`
	Name           string  `db:"name" json:"name"`
	ImageURL       *string `db:"image_url" json:"image"`
	AccessToken    *string `db:"access_token" json:"-"`
	PageURL        *string `db:"page_url" json:"url"`
}

type Store struct{}

// Upsert inserts the page, or replaces the details of the existing
// page with the same external ID.
func (store *Store) Upsert(db database.Queryable, page *Page) error {
	row := db.QueryRowx(`
		INSERT INTO pages(external_page_id, name, image_url, access_token, page_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_page_id) DO UPDATE
		SET name=EXCLUDED.name, image_url=EXCLUDED.image_url, access_token=EXCLUDED.access_token, page_url=EXCLUDED.page_url
		RETURNING id`,
		page.ExternalPageID, page.Name, page.ImageURL, page.AccessToken, page.PageURL,
	)

	if err := row.Scan(&page.ID); err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to upsert page %s", page.ExternalPageID))
	}

	return nil
}

func (store *Store) List(db database.Queryable) ([]*Page, error) {
	var pages []*Page
	if err := db.Select(&pages, `SELECT * FROM pages ORDER BY name, id`); err != nil {
		return nil, database.WrapError(err, "failed to list pages")
	}

	return pages, nil
}

func (store *Store) Get(db database.Queryable, id int64) (*Page, error) {
	var page Page
	if err := db.Get(&page, `SELECT * FROM pages WHERE id=$1`, id); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to find page %d", id))
	}

	return &page, nil
}

// Update changes the name of the page and, if provided, its URL.
func (store *Store) Update(db database.Queryable, id int64, name string, pageURL *string) (*Page, error) {
	var page Page
	if err := db.Get(&page, `
		UPDATE pages SET name=$1, page_url=COALESCE($2, page_url)
		WHERE id=$3
		RETURNING *`, name, pageURL, id,
	); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to update page %d", id))
	}

	return &page, nil
}

func (store *Store) Delete(db database.Queryable, id int64) error {
	var deleted int64
	if err := db.Get(&deleted, `DELETE FROM pages WHERE id=$1 RETURNING id`, id); err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to delete page %d", id))
	}

	return nil
}
