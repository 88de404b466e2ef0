package api

import (
	"bytes"
	"net/http"

	"github.com/emersion/go-vcard"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/contacts"
)

func (s *Server) registerContactRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/contacts", s.withContacts(s.handleListContacts))
	mux.HandleFunc("POST /v1/contacts", s.withContacts(s.handleAddContact))
	mux.HandleFunc("GET /v1/contacts/lookup", s.withContacts(s.handleLookupContact))
	mux.HandleFunc("GET /v1/contacts/export", s.withContacts(s.handleExportContacts))
	mux.HandleFunc("POST /v1/contacts/import", s.withContacts(s.handleImportContacts))
	mux.HandleFunc("POST /v1/contacts/sync", s.withContacts(s.handleSyncContacts))
	mux.HandleFunc("GET /v1/contacts/{id}", s.withContacts(s.handleGetContact))
	mux.HandleFunc("PUT /v1/contacts/{id}", s.withContacts(s.handleUpdateContact))
	mux.HandleFunc("DELETE /v1/contacts/{id}", s.withContacts(s.handleDeleteContact))
	mux.HandleFunc("GET /v1/contacts/{id}/qr", s.withContacts(s.handleContactQR))
}

// withContacts answers 503 when no contact store is configured.
func (s *Server) withContacts(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Contacts == nil {
			s.errorResponse(w, http.StatusServiceUnavailable, "contacts not configured")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Contacts.List()
	if err != nil {
		s.logger.Error("list contacts failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []contacts.Contact{}
	}
	s.respond(w, http.StatusOK, map[string]any{"contacts": list, "count": len(list)})
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Contacts.Get(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, c)
}

func (s *Server) handleLookupContact(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		s.errorResponse(w, http.StatusBadRequest, "number is required")
		return
	}
	c, err := s.deps.Contacts.FindByNumber(number)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, c)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var c contacts.Contact
	if !s.decode(w, r, &c) {
		return
	}
	added, err := s.deps.Contacts.Add(c)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var c contacts.Contact
	if !s.decode(w, r, &c) {
		return
	}
	c.ID = r.PathValue("id")
	updated, err := s.deps.Contacts.Update(c)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Contacts.Delete(r.PathValue("id")); err != nil {
		s.registryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportContacts merges a vCard stream from the request body.
// ?category= overrides the cards' own categories.
func (s *Server) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = s.deps.ContactCategory
	}
	body := http.MaxBytesReader(w, r.Body, maxVCardBytes)
	res, err := s.deps.Contacts.ImportVCard(body, category)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleExportContacts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Contacts.ExportVCard(&buf); err != nil {
		s.logger.Error("export contacts failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="contacts.vcf"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write export", "error", err)
	}
}

func (s *Server) handleSyncContacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.ContactSync == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "carddav sync not configured")
		return
	}
	res, err := s.deps.ContactSync(r.Context())
	if err != nil {
		s.logger.Error("contact sync failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respond(w, http.StatusOK, res)
}

// handleContactQR renders the contact's vCard as a PNG QR code so a
// phone camera can import it directly.
func (s *Server) handleContactQR(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Contacts.Get(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}

	var card bytes.Buffer
	if err := vcard.NewEncoder(&card).Encode(contacts.CardFor(c)); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	png, err := qrcode.Encode(card.String(), qrcode.Medium, 256)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write qr code", "error", err)
	}
}
