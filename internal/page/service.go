package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Pages")

var ErrInvalidUpdate = errors.New("invalid page update")

type (
	AccountLister interface {
		Accounts(ctx context.Context) ([]facebook.GraphPage, error)
	}

	DataStore interface {
		SavePages(pages []*Page) error
		ListPages() ([]*Page, error)
		UpdatePage(id int64, name string, pageURL *string) (*Page, error)
		DeletePage(id int64) error
	}

	Service struct {
		store DataStore
		graph AccountLister
	}
)

func NewService(store DataStore, graph AccountLister) *Service {
	return &Service{store: store, graph: graph}
}

// Sync fetches the pages managed by the configured user from the Graph
// API and upserts each of them. The pages saved are returned; an account
// with no pages is not an error.
func (service *Service) Sync(ctx context.Context) ([]*Page, error) {
	accounts, err := service.graph.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	if len(accounts) == 0 {
		log.Emit(logger.WARNING, "No pages returned from Facebook\n")
		return []*Page{}, nil
	}

	pages := make([]*Page, len(accounts))
	for i, account := range accounts {
		pages[i] = fromGraph(account)
	}

	if err := service.store.SavePages(pages); err != nil {
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Synced %d page(s) from Facebook\n", len(pages))
	return pages, nil
}

func (service *Service) List() ([]*Page, error) {
	return service.store.ListPages()
}

func (service *Service) Update(id int64, name string, pageURL *string) (*Page, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be blank", ErrInvalidUpdate)
	}

	return service.store.UpdatePage(id, name, pageURL)
}

func (service *Service) Delete(id int64) error {
	if err := service.store.DeletePage(id); err != nil {
		return err
	}

	log.Emit(logger.REMOVE, "Deleted page %d\n", id)
	return nil
}

func fromGraph(account facebook.GraphPage) *Page {
	pageURL := account.PageURL()
	page := &Page{ExternalPageID: account.ID, Name: account.Name, PageURL: &pageURL}
	if picture := account.PictureURL(); picture != "" {
		page.ImageURL = &picture
	}
	if account.AccessToken != "" {
		token := account.AccessToken
		page.AccessToken = &token
	}

	return page
}
