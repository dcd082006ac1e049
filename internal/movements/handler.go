package movements

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/athitex/fabricledger/internal/platform/httpx"
	"github.com/athitex/fabricledger/internal/shared"
)

// Handler wires movement HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/receive", h.receive)
}

type createRequest struct {
	FabricCutIDs []int64 `json:"fabricCutIds" validate:"required,min=1"`
	FromLocation string  `json:"fromLocation" validate:"required"`
	ToLocation   string  `json:"toLocation" validate:"required"`
	MovedBy      string  `json:"movedBy" validate:"required"`
}

type receiveRequest struct {
	ReceivedBy string `json:"receivedBy" validate:"required"`
}

type movementCutResponse struct {
	FabricCutID  int64  `json:"fabricCutId"`
	FabricNumber string `json:"fabricNumber"`
	Quantity     string `json:"quantity"`
}

type movementResponse struct {
	ID                  int64                 `json:"id"`
	MovementOrderNumber string                `json:"movementOrderNumber"`
	FromLocation        string                `json:"fromLocation"`
	ToLocation          string                `json:"toLocation"`
	MovedBy             string                `json:"movedBy"`
	Status              string                `json:"status"`
	ReceivedBy          *string               `json:"receivedBy,omitempty"`
	ReceivedAt          *time.Time            `json:"receivedAt,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	Cuts                []movementCutResponse `json:"cuts,omitempty"`
}

func toResponse(m Movement) movementResponse {
	resp := movementResponse{
		ID:                  m.ID,
		MovementOrderNumber: m.MovementOrderNumber,
		FromLocation:        string(m.FromLocation),
		ToLocation:          string(m.ToLocation),
		MovedBy:             m.MovedBy,
		Status:              string(m.Status),
		ReceivedBy:          m.ReceivedBy,
		ReceivedAt:          m.ReceivedAt,
		CreatedAt:           m.CreatedAt,
	}
	for _, cut := range m.Cuts {
		resp.Cuts = append(resp.Cuts, movementCutResponse{
			FabricCutID:  cut.FabricCutID,
			FabricNumber: cut.FabricNumber,
			Quantity:     cut.Quantity.StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Create(r.Context(), CreateInput{
		FabricCutIDs: req.FabricCutIDs,
		FromLocation: shared.Location(req.FromLocation),
		ToLocation:   shared.Location(req.ToLocation),
		MovedBy:      req.MovedBy,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("create movement", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(m))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Receive(r.Context(), id, req.ReceivedBy)
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("receive movement", slog.Any("error", err), slog.Int64("movement_id", id))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(m))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(m))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.List(r.Context(), ListFilters{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]movementResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": resp, "total": total})
}
