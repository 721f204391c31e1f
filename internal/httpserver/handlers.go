package httpserver

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/params"
)

const meterFloorDB = -120

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// ParamResponse describes one parameter.
type ParamResponse struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Min       float32 `json:"min"`
	Max       float32 `json:"max"`
	Init      float32 `json:"init"`
	Value     float32 `json:"value"`
	Applied   float32 `json:"applied"`
	Overflows uint64  `json:"overflows"`
}

// SetParamRequest is the body of PUT /api/v1/params/:id.
type SetParamRequest struct {
	Value *float32 `json:"value"`
}

// CaptureResponse describes the latest view of a capture.
type CaptureResponse struct {
	Name       string      `json:"name"`
	Channels   int         `json:"channels"`
	Frames     int         `json:"frames"`
	Capacity   int         `json:"capacity"`
	Generation uint64      `json:"generation"`
	Written    uint64      `json:"written"`
	PeaksDB    []float32   `json:"peaks_db"`
	Samples    [][]float32 `json:"samples,omitempty"`
}

func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.log.Warn("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("path", c.Request().URL.Path),
		logger.Int("code", code),
		logger.Error(err))
	return c.JSON(code, resp)
}

// paramError maps parameter errors to status codes.
func (s *Server) paramError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, params.ErrUnknownParameter):
		return s.handleError(c, err, "parameter not found", http.StatusNotFound)
	case errors.Is(err, params.ErrInvalidValue):
		return s.handleError(c, err, "invalid parameter value", http.StatusBadRequest)
	default:
		return s.handleError(c, err, "parameter update failed", http.StatusInternalServerError)
	}
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	resp := map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"parameters":     s.store.Len(),
		"announces":      s.store.Announces(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.stats != nil {
		st := s.stats()
		resp["audio"] = map[string]any{
			"blocks":           st.Blocks,
			"frames":           st.Frames,
			"muted_blocks":     st.MutedBlocks,
			"processor_faults": st.Faults,
			"last_block_us":    st.LastBlock.Microseconds(),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) paramResponse(p params.GuiParameter) ParamResponse {
	d := p.Descriptor()
	applied, _ := s.store.Value(d.ID())
	overflows, _ := s.store.Overflows(d.ID())
	return ParamResponse{
		ID:        int(d.ID()),
		Name:      d.Name(),
		Min:       d.Min(),
		Max:       d.Max(),
		Init:      d.Init(),
		Value:     p.Value(),
		Applied:   applied,
		Overflows: overflows,
	}
}

func (s *Server) listParams(c echo.Context) error {
	ps := s.mirror.Params()
	out := make([]ParamResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, s.paramResponse(p))
	}
	return c.JSON(http.StatusOK, out)
}

func parseID(c echo.Context) (params.ID, error) {
	n, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, params.ErrUnknownParameter
	}
	return params.ID(n), nil
}

// respondParam writes the current state of id after a change.
func (s *Server) respondParam(c echo.Context, id params.ID) error {
	p, err := s.mirror.Get(id)
	if err != nil {
		return s.paramError(c, err)
	}
	return c.JSON(http.StatusOK, s.paramResponse(p))
}

func (s *Server) getParam(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return s.paramError(c, err)
	}
	return s.respondParam(c, id)
}

func (s *Server) setParam(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return s.paramError(c, err)
	}
	var req SetParamRequest
	if err := c.Bind(&req); err != nil || req.Value == nil {
		return s.handleError(c, err, "body must be {\"value\": number}", http.StatusBadRequest)
	}
	if _, err := s.mirror.Set(id, *req.Value); err != nil {
		return s.paramError(c, err)
	}
	return s.respondParam(c, id)
}

func (s *Server) resetParam(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return s.paramError(c, err)
	}
	if _, err := s.mirror.Reset(id); err != nil {
		return s.paramError(c, err)
	}
	return s.respondParam(c, id)
}

func (s *Server) toggleParam(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return s.paramError(c, err)
	}
	if _, err := s.mirror.Toggle(id); err != nil {
		return s.paramError(c, err)
	}
	return s.respondParam(c, id)
}

func (s *Server) listCaptures(c echo.Context) error {
	names := make([]string, 0, len(s.captures))
	for name := range s.captures {
		names = append(names, name)
	}
	slices.Sort(names)
	return c.JSON(http.StatusOK, names)
}

func (s *Server) getCapture(c echo.Context) error {
	name := c.Param("name")
	pub, ok := s.captures[name]
	if !ok {
		return s.handleError(c, nil, "capture not found", http.StatusNotFound)
	}
	withSamples, _ := strconv.ParseBool(c.QueryParam("samples"))

	var resp CaptureResponse
	pub.Read(func(v capture.View) {
		resp = CaptureResponse{
			Name:       name,
			Channels:   v.Channels(),
			Frames:     v.Frames(),
			Capacity:   v.Capacity(),
			Generation: v.Generation(),
			Written:    v.Written(),
			PeaksDB:    make([]float32, v.Channels()),
		}
		for ch := range v.Channels() {
			resp.PeaksDB[ch] = capture.PeakDB(v.Peak(ch), meterFloorDB)
		}
		if withSamples {
			resp.Samples = make([][]float32, v.Channels())
			for ch := range v.Channels() {
				resp.Samples[ch] = make([]float32, v.Frames())
				v.CopyChannel(ch, resp.Samples[ch])
			}
		}
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) exportCapture(c echo.Context) error {
	pub, ok := s.captures[c.Param("name")]
	if !ok {
		return s.handleError(c, nil, "capture not found", http.StatusNotFound)
	}
	if s.exportPath == "" || s.sampleRate == nil {
		return s.handleError(c, nil, "capture export is not configured", http.StatusServiceUnavailable)
	}
	path, err := capture.ExportFile(s.exportPath, pub, s.sampleRate(), time.Now())
	if err != nil {
		return s.handleError(c, err, "capture export failed", http.StatusInternalServerError)
	}
	s.log.Info("capture exported", logger.String("capture", pub.Name()), logger.String("path", path))
	return c.JSON(http.StatusCreated, map[string]string{"path": path})
}
