package warps

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/platform/httpx"
	"github.com/athitex/fabricledger/internal/shared"
)

// Handler wires warp HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers warp routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/status", h.updateStatus)
}

type createRequest struct {
	WarpNumber string `json:"warpNumber" validate:"required"`
	Quantity   string `json:"quantity" validate:"required"`
	OrderRef   string `json:"orderRef"`
	LoomRef    string `json:"loomRef"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE STOPPED COMPLETE"`
}

type warpResponse struct {
	ID         int64     `json:"id"`
	WarpNumber string    `json:"warpNumber"`
	Quantity   string    `json:"quantity"`
	OrderRef   string    `json:"orderRef"`
	LoomRef    string    `json:"loomRef"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toResponse(w Warp) warpResponse {
	return warpResponse{
		ID:         w.ID,
		WarpNumber: w.WarpNumber,
		Quantity:   w.Quantity.StringFixed(2),
		OrderRef:   w.OrderRef,
		LoomRef:    w.LoomRef,
		Status:     string(w.Status),
		CreatedAt:  w.CreatedAt,
	}
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
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
		return
	}
	warp, err := h.service.Create(r.Context(), CreateInput{
		WarpNumber: req.WarpNumber,
		Quantity:   qty,
		OrderRef:   req.OrderRef,
		LoomRef:    req.LoomRef,
	})
	if err != nil {
		h.logger.Error("create warp", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(warp))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.List(r.Context(), ListFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("list warps", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]warpResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": resp, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warp id")
		return
	}
	warp, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(warp))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warp id")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	warp, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("update warp status", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(warp))
}
