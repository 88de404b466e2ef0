package contacts

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"
)

// CardFor renders c as a vCard 4.0 card.
func CardFor(c Contact) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, c.Name)
	card.SetName(&vcard.Name{FamilyName: c.Name})
	card.Add(vcard.FieldTelephone, &vcard.Field{
		Value:  c.Number,
		Params: vcard.Params{vcard.ParamType: {vcard.TypeVoice}},
	})
	if c.Category != "" {
		card.SetCategories([]string{c.Category})
	}
	if c.ID != "" {
		card.SetValue(vcard.FieldUID, "urn:uuid:"+c.ID)
	}
	vcard.ToV4(card)
	return card
}

// contactFromCard extracts the fields the registry keeps. Cards without
// a name or telephone number yield ok=false.
func contactFromCard(card vcard.Card, category string) (c Contact, ok bool) {
	c.Name = strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName))
	if c.Name == "" {
		if n := card.Name(); n != nil {
			c.Name = strings.TrimSpace(strings.Join([]string{n.GivenName, n.FamilyName}, " "))
		}
	}
	c.Number = strings.TrimSpace(card.PreferredValue(vcard.FieldTelephone))
	c.Number = strings.TrimPrefix(c.Number, "tel:")
	if c.Name == "" || c.Number == "" {
		return Contact{}, false
	}

	c.Category = category
	if cats := card.Categories(); len(cats) > 0 && category == "" {
		c.Category = cats[0]
	}
	return c, true
}

// ImportResult summarizes an import or sync run.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportVCard reads every card from r and merges it into the store by
// telephone number. A non-empty category overrides the cards' own
// CATEGORIES.
func (s *Store) ImportVCard(r io.Reader, category string) (ImportResult, error) {
	var res ImportResult
	dec := vcard.NewDecoder(r)
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("decode vcard: %w", err)
		}
		if err := s.mergeCard(card, category, &res); err != nil {
			return res, err
		}
	}
	s.logger.Info("vcard import complete", "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

func (s *Store) mergeCard(card vcard.Card, category string, res *ImportResult) error {
	c, ok := contactFromCard(card, category)
	if !ok {
		res.Skipped++
		return nil
	}
	created, err := s.Merge(c)
	if err != nil {
		return fmt.Errorf("merge %q: %w", c.Name, err)
	}
	if created {
		res.Added++
	} else {
		res.Updated++
	}
	return nil
}

// ExportVCard writes all contacts to w as a vCard 4.0 stream.
func (s *Store) ExportVCard(w io.Writer) error {
	list, err := s.List()
	if err != nil {
		return err
	}
	enc := vcard.NewEncoder(w)
	for _, c := range list {
		if err := enc.Encode(CardFor(c)); err != nil {
			return fmt.Errorf("encode %s: %w", c.ID, err)
		}
	}
	return nil
}
