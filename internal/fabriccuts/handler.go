package fabriccuts

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/platform/httpx"
)

// Handler wires fabric cut HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountWarpRoutes registers the generate endpoint under /warps/{id}.
func (h *Handler) MountWarpRoutes(r chi.Router) {
	r.Post("/{id}/fabric-cuts", h.generate)
	r.Get("/{id}/fabric-cuts", h.listForWarp)
}

// MountRoutes registers fabric cut routes. The {ref} segment is the fabric
// number on the lookup path and the cut id on the inspection path; both share
// one param name so they can live under the same subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{ref}", h.lookup)
	r.Post("/{ref}/inspection", h.recordInspection)
}

type generateRequest struct {
	Quantities []string `json:"quantities" validate:"required,min=1,dive,required"`
}

type inspectionRequest struct {
	InspectedQuantity string   `json:"inspectedQuantity" validate:"required"`
	MistakeQuantity   string   `json:"mistakeQuantity"`
	Mistakes          []string `json:"mistakes"`
	Inspector1        string   `json:"inspector1" validate:"required"`
	Inspector2        string   `json:"inspector2" validate:"required"`
}

type cutResponse struct {
	ID                   int64      `json:"id"`
	FabricNumber         string     `json:"fabricNumber"`
	WarpID               int64      `json:"warpId"`
	WarpNumber           string     `json:"warpNumber"`
	Quantity             string     `json:"quantity"`
	Location             string     `json:"location"`
	HasInspection        bool       `json:"hasInspection"`
	InspectedQuantity    string     `json:"inspectedQuantity,omitempty"`
	MistakeQuantity      string     `json:"mistakeQuantity,omitempty"`
	ActualQuantity       string     `json:"actualQuantity,omitempty"`
	Mistakes             []string   `json:"mistakes,omitempty"`
	Inspector1           string     `json:"inspector1,omitempty"`
	Inspector2           string     `json:"inspector2,omitempty"`
	InspectedAt          *time.Time `json:"inspectedAt,omitempty"`
	ProcessingOrderID    *int64     `json:"processingOrderId,omitempty"`
	IsProcessingReceived bool       `json:"isProcessingReceived"`
	InvoiceSubmitted     bool       `json:"invoiceSubmitted"`
}

func toCutResponse(c FabricCut) cutResponse {
	resp := cutResponse{
		ID:                   c.ID,
		FabricNumber:         c.FabricNumber,
		WarpID:               c.WarpID,
		WarpNumber:           c.WarpNumber,
		Quantity:             c.Quantity.StringFixed(2),
		Location:             string(c.Location),
		HasInspection:        c.HasInspection,
		Mistakes:             c.Mistakes,
		Inspector1:           c.Inspector1,
		Inspector2:           c.Inspector2,
		InspectedAt:          c.InspectedAt,
		ProcessingOrderID:    c.ProcessingOrderID,
		IsProcessingReceived: c.IsProcessingReceived,
		InvoiceSubmitted:     c.InvoiceSubmitted,
	}
	if c.HasInspection {
		resp.InspectedQuantity = c.InspectedQuantity.StringFixed(2)
		resp.MistakeQuantity = c.MistakeQuantity.StringFixed(2)
		resp.ActualQuantity = c.ActualQuantity.StringFixed(2)
	}
	return resp
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	warpID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warp id")
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantities := make([]decimal.Decimal, 0, len(req.Quantities))
	for _, raw := range req.Quantities {
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantities must be decimal numbers")
			return
		}
		quantities = append(quantities, qty)
	}
	cuts, err := h.service.GenerateCuts(r.Context(), warpID, quantities)
	if err != nil {
		h.logger.Error("generate cuts", slog.Any("error", err), slog.Int64("warp_id", warpID))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]cutResponse, 0, len(cuts))
	for _, cut := range cuts {
		resp = append(resp, toCutResponse(cut))
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) listForWarp(w http.ResponseWriter, r *http.Request) {
	warpID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warp id")
		return
	}
	cuts, err := h.service.ListForWarp(r.Context(), warpID)
	if err != nil {
		h.logger.Error("list cuts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]cutResponse, 0, len(cuts))
	for _, cut := range cuts {
		resp = append(resp, toCutResponse(cut))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	cut, err := h.service.Lookup(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCutResponse(cut))
}

func (h *Handler) recordInspection(w http.ResponseWriter, r *http.Request) {
	cutID, err := strconv.ParseInt(chi.URLParam(r, "ref"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fabric cut id")
		return
	}
	var req inspectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inspected, err := decimal.NewFromString(req.InspectedQuantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "inspectedQuantity must be a decimal number")
		return
	}
	mistake := decimal.Zero
	if req.MistakeQuantity != "" {
		mistake, err = decimal.NewFromString(req.MistakeQuantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "mistakeQuantity must be a decimal number")
			return
		}
	}
	cut, err := h.service.RecordInspection(r.Context(), InspectionInput{
		CutID:             cutID,
		InspectedQuantity: inspected,
		MistakeQuantity:   mistake,
		Mistakes:          req.Mistakes,
		Inspector1:        req.Inspector1,
		Inspector2:        req.Inspector2,
	})
	if err != nil {
		h.logger.Error("record inspection", slog.Any("error", err), slog.Int64("cut_id", cutID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCutResponse(cut))
}
