package page_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

type mockDataStore struct{ mock.Mock }

func (m *mockDataStore) SavePages(pages []*page.Page) error { return m.Called(pages).Error(0) }

func (m *mockDataStore) ListPages() ([]*page.Page, error) {
	args := m.Called()
	pages, _ := args.Get(0).([]*page.Page)
	return pages, args.Error(1)
}

func (m *mockDataStore) UpdatePage(id int64, name string, pageURL *string) (*page.Page, error) {
	args := m.Called(id, name, pageURL)
	p, _ := args.Get(0).(*page.Page)
	return p, args.Error(1)
}

func (m *mockDataStore) DeletePage(id int64) error { return m.Called(id).Error(0) }

type stubAccounts struct {
	pages []facebook.GraphPage
	err   error
}

func (s stubAccounts) Accounts(context.Context) ([]facebook.GraphPage, error) { return s.pages, s.err }

func graphPage(t *testing.T, raw string) facebook.GraphPage {
	t.Helper()

	var p facebook.GraphPage
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestService_Sync(t *testing.T) {
	t.Parallel()
	store := &mockDataStore{}
	store.On("SavePages", mock.Anything).Return(nil)

	accounts := stubAccounts{pages: []facebook.GraphPage{
		graphPage(t, `{"id": "111", "name": "Cooking Daily", "link": "https://www.facebook.com/cookingdaily", "access_token": "tok", "picture": {"data": {"url": "https://cdn/pic.jpg"}}}`),
		graphPage(t, `{"id": "222", "name": "No Link"}`),
	}}

	pages, err := page.NewService(store, accounts).Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "111", pages[0].ExternalPageID)
	assert.Equal(t, "https://www.facebook.com/cookingdaily", *pages[0].PageURL)
	assert.Equal(t, "https://cdn/pic.jpg", *pages[0].ImageURL)
	assert.Equal(t, "tok", *pages[0].AccessToken)

	assert.Equal(t, "https://www.facebook.com/222", *pages[1].PageURL, "missing links fall back to the page ID")
	assert.Nil(t, pages[1].ImageURL)
	assert.Nil(t, pages[1].AccessToken)

	encoded, err := json.Marshal(pages[0])
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "tok", "access tokens are never serialised")
}

func TestService_Sync_NoPages(t *testing.T) {
	t.Parallel()
	store := &mockDataStore{}

	pages, err := page.NewService(store, stubAccounts{}).Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)
	store.AssertNotCalled(t, "SavePages", mock.Anything)
}

func TestService_Sync_GraphError(t *testing.T) {
	t.Parallel()

	_, err := page.NewService(&mockDataStore{}, stubAccounts{err: facebook.ErrMissingToken}).Sync(context.Background())
	assert.ErrorIs(t, err, facebook.ErrMissingToken)
}

func TestService_Update_RequiresName(t *testing.T) {
	t.Parallel()
	store := &mockDataStore{}

	_, err := page.NewService(store, stubAccounts{}).Update(1, "   ", nil)
	assert.ErrorIs(t, err, page.ErrInvalidUpdate)
	store.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

func TestStore_Upsert(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	url := "https://www.facebook.com/111"
	p := &page.Page{ExternalPageID: "111", Name: "Page", PageURL: &url}
	mock.ExpectQuery(`INSERT INTO pages(.+)ON CONFLICT \(external_page_id\) DO UPDATE`).
		WithArgs("111", "Page", nil, nil, url).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	require.NoError(t, (&page.Store{}).Upsert(db, p))
	assert.Equal(t, int64(12), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete_NotFound(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectQuery(`DELETE FROM pages WHERE id=\$1 RETURNING id`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := (&page.Store{}).Delete(db, 5)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
