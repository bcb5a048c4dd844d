package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/hackday-platform/checkin-api/services"
)

type response struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type decodingError struct {
	status int
	msg    string
}

func (br *decodingError) Error() string {
	return br.msg
}

type RedeemRequest struct {
	EventID string `json:"eventId"`
	QRToken string `json:"qrToken"`
}

type RedeemResponse struct {
	SubjectID           string `json:"subjectId"`
	Name                string `json:"name"`
	DietaryRestrictions string `json:"dietaryRestrictions"`
	PointsAwarded       int64  `json:"pointsAwarded"`
}

type IssueQRResponse struct {
	QRToken   string `json:"qrToken"`
	ExpiresAt int64  `json:"expiresAt"`
}

type CreateEventRequest struct {
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type EventResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type EventAttendanceResponse struct {
	EventID   string   `json:"eventId"`
	Attendees []string `json:"attendees"`
}

type SubjectAttendanceResponse struct {
	SubjectID  string   `json:"subjectId"`
	Attendance []string `json:"attendance"`
}

func readJSONRequest(w http.ResponseWriter, r *http.Request, req interface{}) error {
	var err error

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		const msg = "Content-Type is not application/json"
		return &decodingError{status: http.StatusUnsupportedMediaType, msg: msg}
	}

	// Limit the size of the request body to 2 KB
	r.Body = http.MaxBytesReader(w, r.Body, 2048)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err = dec.Decode(&req)
	if err != nil || dec.Decode(&struct{}{}) != io.EOF {
		const msg = "invalid or multiple JSON objects in request body"
		return &decodingError{status: http.StatusBadRequest, msg: msg}
	}

	return nil
}

func writeJSONResponse(w http.ResponseWriter, code int, data interface{}, err string) error {
	resp, merr := json.Marshal(response{Data: data, Error: err})
	if merr != nil {
		return merr
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, e := w.Write(resp)
	return e
}

func writeJSONError(w http.ResponseWriter, err error) error {
	var de *decodingError
	switch {
	case errors.As(err, &de):
		return writeJSONResponse(w, de.status, nil, de.msg)
	case errors.Is(err, &services.EventNotFoundError{}):
		return writeJSONResponse(w, http.StatusNotFound, nil, err.Error())
	case errors.Is(err, &services.QRInvalidError{}),
		errors.Is(err, &services.QRExpiredError{}),
		errors.Is(err, &services.AlreadyCheckedInError{}),
		errors.Is(err, &services.ValidationError{}):
		return writeJSONResponse(w, http.StatusBadRequest, nil, err.Error())
	default:
		// ProfileMissingError and storage failures land here: internal
		// invariant violations are never surfaced as client errors.
		return writeJSONResponse(w, http.StatusInternalServerError, nil, "internal server error")
	}
}
