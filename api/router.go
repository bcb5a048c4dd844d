package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hackday-platform/checkin-api/middleware"
	"github.com/hackday-platform/checkin-api/services"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type apiRouter struct {
	svc    *services.Service
	logger *zap.Logger
}

func (ar *apiRouter) Redeem(w http.ResponseWriter, r *http.Request) error {
	// Try to decode the request body.
	var req RedeemRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}

	scannerID := ""
	if claims, ok := middleware.ClaimsFrom(r.Context()); ok {
		scannerID = claims.Subject
	}
	ar.logger.Info("Got check-in request",
		zap.String("eventID", req.EventID),
		zap.String("scannerID", scannerID),
	)

	res, err := ar.svc.Redeem(r.Context(), req.EventID, req.QRToken)
	if err != nil {
		return writeJSONError(w, err)
	}

	ar.logger.Info("Accepted check-in",
		zap.String("eventID", req.EventID),
		zap.String("subjectID", res.SubjectID),
		zap.Int64("pointsAwarded", res.PointsAwarded))

	resp := RedeemResponse{
		SubjectID:           res.SubjectID,
		Name:                res.Profile.Name,
		DietaryRestrictions: res.Profile.DietaryRestrictions,
		PointsAwarded:       res.PointsAwarded,
	}

	return writeJSONResponse(w, http.StatusOK, resp, "")
}

// IssueQR issues a check-in token for the authenticated caller's own
// subject ID; the credential can never name anyone else.
func (ar *apiRouter) IssueQR(w http.ResponseWriter, r *http.Request) error {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return writeJSONResponse(w, http.StatusUnauthorized, nil, "missing authentication")
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "invalid ttl parameter"})
		}
		ttl = time.Duration(secs) * time.Second
	}

	token, expiresAt, err := ar.svc.IssueQR(r.Context(), claims.Subject, ttl)
	if err != nil {
		return writeJSONError(w, err)
	}

	resp := IssueQRResponse{
		QRToken:   token,
		ExpiresAt: expiresAt.Unix(),
	}

	return writeJSONResponse(w, http.StatusOK, resp, "")
}

func (ar *apiRouter) CreateEvent(w http.ResponseWriter, r *http.Request) error {
	var req CreateEventRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}

	ev, err := ar.svc.CreateEvent(r.Context(), req.Name, req.Points)
	if err != nil {
		return writeJSONError(w, err)
	}

	resp := EventResponse{
		ID:     ev.ID,
		Name:   ev.Name,
		Points: ev.Points,
	}

	return writeJSONResponse(w, http.StatusCreated, resp, "")
}

func (ar *apiRouter) EventAttendance(w http.ResponseWriter, r *http.Request) error {
	rec, err := ar.svc.EventAttendance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return writeJSONError(w, err)
	}

	resp := EventAttendanceResponse{
		EventID:   rec.EventID,
		Attendees: rec.Attendees,
	}

	return writeJSONResponse(w, http.StatusOK, resp, "")
}

func (ar *apiRouter) SubjectAttendance(w http.ResponseWriter, r *http.Request) error {
	rec, err := ar.svc.SubjectAttendance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return writeJSONError(w, err)
	}

	resp := SubjectAttendanceResponse{
		SubjectID:  rec.SubjectID,
		Attendance: rec.Attendance,
	}

	return writeJSONResponse(w, http.StatusOK, resp, "")
}

// Wrapper to log unhandled errors.
// Note that this wrapper is only for last resort errors. For example, caused
// by error handling functions not being able to write a response to the
// client.
func (ar *apiRouter) wrapHandler(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			ar.logger.Error("Error handling request", zap.Error(err))
		}
	}
}

func NewAPIRouter(path string, svc *services.Service, auth *middleware.Authenticator, origins []string, metricsHandler http.Handler, logger *zap.Logger) *mux.Router {
	// Create router.
	ah := &apiRouter{
		svc,
		logger,
	}
	r := mux.NewRouter()
	sr := r.PathPrefix(path).Subrouter()

	staff := auth.Require(middleware.RoleStaff, middleware.RoleAdmin)
	admin := auth.Require(middleware.RoleAdmin)
	attendee := auth.Require()

	// Register handlers.
	allowedMethods := []string{"GET", "POST", "OPTIONS"}
	sr.Handle("/redeem", staff(ah.wrapHandler(ah.Redeem))).Methods("POST", "OPTIONS")
	sr.Handle("/qr", attendee(ah.wrapHandler(ah.IssueQR))).Methods("GET", "OPTIONS")
	sr.Handle("/events", admin(ah.wrapHandler(ah.CreateEvent))).Methods("POST", "OPTIONS")
	sr.Handle("/events/{id}/attendees", staff(ah.wrapHandler(ah.EventAttendance))).Methods("GET", "OPTIONS")
	sr.Handle("/subjects/{id}/attendance", staff(ah.wrapHandler(ah.SubjectAttendance))).Methods("GET", "OPTIONS")

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	// CORS support.
	ch := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		Debug:            logger.Level() == zap.DebugLevel,
	})
	sr.Use(ch.Handler)

	return r
}
