package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

const (
	accountFields = "id,name,link,picture.width(150).height(150),access_token"

	// maxAccountPages bounds how many cursor pages are followed.
	maxAccountPages = 20
)

var (
	ErrGraph        = errors.New("graph api request failed")
	ErrMissingToken = errors.New("facebook user token is not configured")
)

type (
	// GraphPage is a Facebook page managed by the configured user.
	GraphPage struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Link        string `json:"link"`
		AccessToken string `json:"access_token"`
		Picture     struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}

	accountsResponse struct {
		Data   []GraphPage `json:"data"`
		Paging struct {
			Next string `json:"next"`
		} `json:"paging"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}

	GraphClient struct {
		httpClient *http.Client
		config     Config
	}
)

// PageURL returns the link reported by Graph, or the canonical page
// URL built from the page ID if none was reported.
func (page GraphPage) PageURL() string {
	if page.Link != "" {
		return page.Link
	}

	return "https://www.facebook.com/" + page.ID
}

func (page GraphPage) PictureURL() string { return page.Picture.Data.URL }

func NewGraphClient(config Config) *GraphClient {
	return &GraphClient{httpClient: newHTTPClient(config), config: config}
}

// Accounts lists every page the configured user token has access to,
// following the Graph API pagination cursor.
func (client *GraphClient) Accounts(ctx context.Context) ([]GraphPage, error) {
	if strings.TrimSpace(client.config.UserToken) == "" {
		return nil, ErrMissingToken
	}

	query := url.Values{}
	query.Set("fields", accountFields)
	query.Set("access_token", client.config.UserToken)
	next := fmt.Sprintf("%s/me/accounts?%s", strings.TrimSuffix(client.config.GraphBaseURL, "/"), query.Encode())

	pages := make([]GraphPage, 0)
	for i := 0; next != "" && i < maxAccountPages; i++ {
		resp, err := client.get(ctx, next)
		if err != nil {
			return nil, err
		}

		pages = append(pages, resp.Data...)
		next = resp.Paging.Next
	}

	log.Emit(logger.DEBUG, "Graph API reported %d pages\n", len(pages))
	return pages, nil
}

func (client *GraphClient) get(ctx context.Context, target string) (*accountsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraph, err)
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraph, err)
	}
	defer resp.Body.Close()

	var out accountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: malformed response (status %d): %w", ErrGraph, resp.StatusCode, err)
	}

	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s, code %d)", ErrGraph, out.Error.Message, out.Error.Type, out.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGraph, resp.StatusCode)
	}

	return &out, nil
}
