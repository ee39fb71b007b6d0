package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/logbridge/internal/proxy"
)

// guideInput holds the raw form or JSON values of a guide request.
type guideInput struct {
	City string
	Date string
}

func readGuideInput(r *http.Request) (guideInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return guideInput{}, err
		}
		return guideInput{City: r.PostFormValue("city"), Date: r.PostFormValue("date")}, nil
	}

	var body struct {
		City string          `json:"city"`
		Date json.RawMessage `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return guideInput{}, err
	}
	in := guideInput{City: body.City}
	if len(body.Date) > 0 && string(body.Date) != "null" {
		if err := json.Unmarshal(body.Date, &in.Date); err != nil {
			// Not a string: keep the raw literal (a number) for Atoi below.
			in.Date = string(body.Date)
		}
	}
	return in, nil
}

// handleGuide handles POST /api/guide.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	in, err := readGuideInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.Date) == "" {
		writeError(w, http.StatusBadRequest, "city and date are required")
		return
	}
	date, err := strconv.Atoi(strings.TrimSpace(in.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be a number")
		return
	}

	req := proxy.GuideRequest{City: in.City, Date: date}
	s.logger.Info("guide: forwarding", "upstream", s.proxy.URL(), "city", req.City, "date", req.Date)

	reply, err := s.proxy.Forward(r.Context(), req)
	if err != nil {
		s.logger.Error("guide: upstream unreachable", "upstream", s.proxy.URL(), "err", err)
		writeError(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"output":  reply.Output(),
	})
}
