package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// flexString decodes a JSON string, number or null into an optional string.
// Clients send phone numbers both as "123456" and 123456.
type flexString struct {
	Value *string
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Value = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.Value = &s
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		s = strconv.FormatInt(i, 10)
	}
	f.Value = &s
	return nil
}

// identifyRequest is the body of POST /identify.
type identifyRequest struct {
	Email       *string    `json:"email"`
	PhoneNumber flexString `json:"phoneNumber"`
}

// addContactRequest is the body of POST /add-contact.
type addContactRequest struct {
	ID             *int64     `json:"id"`
	Email          *string    `json:"email"`
	PhoneNumber    flexString `json:"phoneNumber"`
	LinkedID       *int64     `json:"linkedId"`
	LinkPrecedence string     `json:"linkPrecedence"`
}

// contactResponse wraps a consolidated view.
type contactResponse struct {
	Contact any `json:"contact"`
}

// addContactResponse is the body returned by POST /add-contact.
type addContactResponse struct {
	Message   string `json:"message"`
	ContactID int64  `json:"contact_id"`
}
