package contacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"
)

// CardSource yields the cards of a remote address book.
type CardSource interface {
	Cards(ctx context.Context) ([]vcard.Card, error)
}

// CardDAVSource pulls cards from a CardDAV server.
type CardDAVSource struct {
	client *carddav.Client
	book   string
}

// NewCardDAVSource creates a CardDAV source. An empty book path means
// the first address book found under the user's home set.
func NewCardDAVSource(httpClient *http.Client, endpoint, username, password, book string) (*CardDAVSource, error) {
	var hc webdav.HTTPClient = httpClient
	if username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}
	client, err := carddav.NewClient(hc, endpoint)
	if err != nil {
		return nil, fmt.Errorf("carddav client: %w", err)
	}
	return &CardDAVSource{client: client, book: book}, nil
}

// Cards queries every card in the configured address book.
func (s *CardDAVSource) Cards(ctx context.Context) ([]vcard.Card, error) {
	book := s.book
	if book == "" {
		var err error
		if book, err = s.discover(ctx); err != nil {
			return nil, err
		}
	}

	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{vcard.FieldFormattedName, vcard.FieldName, vcard.FieldTelephone, vcard.FieldCategories, vcard.FieldUID},
		},
	}
	objs, err := s.client.QueryAddressBook(ctx, book, query)
	if err != nil {
		return nil, fmt.Errorf("query address book %s: %w", book, err)
	}
	cards := make([]vcard.Card, 0, len(objs))
	for _, o := range objs {
		cards = append(cards, o.Card)
	}
	return cards, nil
}

func (s *CardDAVSource) discover(ctx context.Context) (string, error) {
	principal, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := s.client.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find address book home: %w", err)
	}
	books, err := s.client.FindAddressBooks(ctx, home)
	if err != nil {
		return "", fmt.Errorf("list address books: %w", err)
	}
	if len(books) == 0 {
		return "", errors.New("no address books found")
	}
	return books[0].Path, nil
}

// Sync merges every card from src into the store, tagging new and
// updated entries with category.
func (s *Store) Sync(ctx context.Context, src CardSource, category string) (ImportResult, error) {
	var res ImportResult
	cards, err := src.Cards(ctx)
	if err != nil {
		return res, err
	}
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.mergeCard(card, category, &res); err != nil {
			return res, err
		}
	}
	s.logger.Info("contact sync complete", "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}
