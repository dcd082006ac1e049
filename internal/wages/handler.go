package wages

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

// Handler wires wage invoice HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers wage invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.submit)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/decision", h.decide)
	r.Post("/{id}/payment", h.payment)
	r.Delete("/{id}", h.remove)
}

type submitRequest struct {
	WarpID       int64  `json:"warpId" validate:"required"`
	RatePerMeter string `json:"ratePerMeter" validate:"required"`
	ActorID      int64  `json:"actorId"`
}

type decisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Note   string `json:"note"`
	// Optional review overwrites, only meaningful with action=approve.
	ActualQuantity *string `json:"actualQuantity"`
	RatePerMeter   *string `json:"ratePerMeter"`
	ActorID        int64   `json:"actorId"`
}

type paymentRequest struct {
	ActorID int64 `json:"actorId"`
}

type invoiceCutResponse struct {
	FabricNumber      string `json:"fabricNumber"`
	Quantity          string `json:"quantity"`
	InspectedQuantity string `json:"inspectedQuantity"`
	MistakeQuantity   string `json:"mistakeQuantity"`
	ActualQuantity    string `json:"actualQuantity"`
	Inspector1        string `json:"inspector1,omitempty"`
	Inspector2        string `json:"inspector2,omitempty"`
}

type invoiceResponse struct {
	ID                          int64                `json:"id"`
	InvoiceNumber               string               `json:"invoiceNumber"`
	WarpID                      int64                `json:"warpId"`
	WarpNumber                  string               `json:"warpNumber"`
	Cuts                        []invoiceCutResponse `json:"fabricCutSnapshot,omitempty"`
	RatePerMeter                string               `json:"ratePerMeter"`
	ActualQuantity              string               `json:"actualQuantity"`
	TotalWages                  string               `json:"totalWages"`
	Status                      string               `json:"status"`
	ValuesUpdatedDuringApproval bool                 `json:"valuesUpdatedDuringApproval"`
	ApprovedAt                  *time.Time           `json:"approvedAt,omitempty"`
	PaidAt                      *time.Time           `json:"paidAt,omitempty"`
	CreatedAt                   time.Time            `json:"createdAt"`
}

func toInvoiceResponse(inv WageInvoice) invoiceResponse {
	resp := invoiceResponse{
		ID:                          inv.ID,
		InvoiceNumber:               inv.InvoiceNumber,
		WarpID:                      inv.WarpID,
		WarpNumber:                  inv.WarpNumber,
		RatePerMeter:                inv.RatePerMeter.StringFixed(2),
		ActualQuantity:              inv.ActualQuantity.StringFixed(2),
		TotalWages:                  inv.TotalWages.StringFixed(2),
		Status:                      string(inv.Status),
		ValuesUpdatedDuringApproval: inv.ValuesUpdatedDuringApproval,
		ApprovedAt:                  inv.ApprovedAt,
		PaidAt:                      inv.PaidAt,
		CreatedAt:                   inv.CreatedAt,
	}
	for _, cut := range inv.Cuts {
		resp.Cuts = append(resp.Cuts, invoiceCutResponse{
			FabricNumber:      cut.FabricNumber,
			Quantity:          cut.Quantity.StringFixed(2),
			InspectedQuantity: cut.InspectedQuantity.StringFixed(2),
			MistakeQuantity:   cut.MistakeQuantity.StringFixed(2),
			ActualQuantity:    cut.ActualQuantity.StringFixed(2),
			Inspector1:        cut.Inspector1,
			Inspector2:        cut.Inspector2,
		})
	}
	return resp
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rate, err := decimal.NewFromString(req.RatePerMeter)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ratePerMeter must be a decimal number")
		return
	}
	inv, err := h.service.Submit(r.Context(), SubmitInput{
		WarpID:       req.WarpID,
		RatePerMeter: rate,
		ActorID:      req.ActorID,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("submit wage invoice", slog.Any("error", err), slog.Int64("warp_id", req.WarpID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var updated *UpdatedValues
	if req.ActualQuantity != nil || req.RatePerMeter != nil {
		updated = &UpdatedValues{}
		if req.ActualQuantity != nil {
			qty, err := decimal.NewFromString(*req.ActualQuantity)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actualQuantity must be a decimal number")
				return
			}
			updated.ActualQuantity = &qty
		}
		if req.RatePerMeter != nil {
			rate, err := decimal.NewFromString(*req.RatePerMeter)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ratePerMeter must be a decimal number")
				return
			}
			updated.RatePerMeter = &rate
		}
	}
	inv, err := h.service.Decide(r.Context(), DecideInput{
		InvoiceID: invoiceID,
		Approve:   req.Action == "approve",
		Updated:   updated,
		ActorID:   req.ActorID,
		Note:      req.Note,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("decide wage invoice", slog.Any("error", err), slog.Int64("invoice_id", invoiceID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	inv, err := h.service.MarkPaid(r.Context(), invoiceID, req.ActorID)
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("mark invoice paid", slog.Any("error", err), slog.Int64("invoice_id", invoiceID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	if err := h.service.Delete(r.Context(), invoiceID); err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("delete wage invoice", slog.Any("error", err), slog.Int64("invoice_id", invoiceID))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.Get(r.Context(), invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	warpID, _ := strconv.ParseInt(r.URL.Query().Get("warpId"), 10, 64)
	items, total, err := h.service.List(r.Context(), ListFilters{
		Status: r.URL.Query().Get("status"),
		WarpID: warpID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("list wage invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toInvoiceResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": resp, "total": total})
}
