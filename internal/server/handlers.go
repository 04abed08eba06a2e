package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/logging"
	"github.com/roach88/idrecon/internal/server/response"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, response.Message{Message: "idrecon API is up"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("readiness check failed")
		response.ServiceUnavailable(w, "contact store is not reachable")
		return
	}
	response.OK(w, map[string]string{"status": "ready"})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.reconciler.Identify(r.Context(), contact.Fragment{
		Email: req.Email,
		Phone: req.PhoneNumber.Value,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	response.OK(w, contactResponse{Contact: view})
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.reconciler.AddContact(r.Context(), contact.NewContact{
		ID:         req.ID,
		Email:      req.Email,
		Phone:      req.PhoneNumber.Value,
		LinkedID:   req.LinkedID,
		Precedence: contact.Precedence(req.LinkPrecedence),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	response.OK(w, addContactResponse{Message: "Contact added successfully", ContactID: id})
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := s.reconciler.Cluster(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	response.OK(w, contactResponse{Contact: view})
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.reconciler.DeleteContact(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	response.OK(w, response.Message{Message: fmt.Sprintf("Contact %d deleted successfully", id)})
}

// writeError logs unexpected failures and writes the mapped error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status := response.StatusFor(err); status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	response.ErrorFromType(w, err)
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, "Request body too large", err.Error())
			return false
		}
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// pathID parses the {id} path value, writing a 400 when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.ErrorFromType(w, contact.NewInvalidRequestError(fmt.Sprintf("contact id %q is not an integer", raw)))
		return 0, false
	}
	return id, true
}
