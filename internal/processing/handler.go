package processing

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

// Handler wires processing order HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers processing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.send)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Get("/{id}/summary", h.summary)
	r.Post("/{id}/deliveries", h.receiveDelivery)
	r.Put("/{id}/deliveries/{index}", h.editDelivery)
	r.Delete("/{id}/deliveries/{index}", h.deleteDelivery)
}

// MountUsageRoute registers the fabric-number usage guard under the
// fabric-cuts subtree.
func (h *Handler) MountUsageRoute(r chi.Router) {
	r.Get("/{ref}/processing-usage", h.usage)
}

type sendRequest struct {
	FabricCutIDs     []int64  `json:"fabricCutIds" validate:"required,min=1"`
	ProcessingCenter string   `json:"processingCenterId" validate:"required"`
	Processes        []string `json:"processes" validate:"required,min=1,dive,required"`
	VehicleNumber    string   `json:"vehicleNumber"`
	DeliveryDate     string   `json:"deliveryDate"`
}

type deliveryRequest struct {
	DeliveryNumber string   `json:"deliveryNumber" validate:"required"`
	ReceivedBy     string   `json:"receivedBy" validate:"required"`
	Location       string   `json:"location" validate:"required"`
	Quantities     []string `json:"quantities" validate:"required,min=1,dive,required"`
}

type sentCutResponse struct {
	FabricCutID  int64  `json:"fabricCutId"`
	FabricNumber string `json:"fabricNumber"`
	WarpNumber   string `json:"warpNumber"`
	OrderRef     string `json:"orderRef"`
	Quantity     string `json:"quantity"`
}

type deliveryResponse struct {
	DeliveryNumber        string    `json:"deliveryNumber"`
	ReceivedBy            string    `json:"receivedBy"`
	Location              string    `json:"location"`
	CutsReceived          int       `json:"cutsReceived"`
	TotalQuantityReceived string    `json:"totalQuantityReceived"`
	ReceivedAt            time.Time `json:"receivedAt"`
}

type receivedCutResponse struct {
	FabricNumber string `json:"fabricNumber"`
	Quantity     string `json:"quantity"`
}

type orderResponse struct {
	ID                 int64                 `json:"id"`
	OrderFormNumber    string                `json:"orderFormNumber"`
	ProcessingCenter   string                `json:"processingCenterId"`
	Processes          []string              `json:"processes"`
	VehicleNumber      string                `json:"vehicleNumber,omitempty"`
	DeliveryDate       time.Time             `json:"deliveryDate"`
	TotalQuantity      string                `json:"totalQuantity"`
	Status             string                `json:"status"`
	SentFabricCuts     []sentCutResponse     `json:"sentFabricCuts,omitempty"`
	Deliveries         []deliveryResponse    `json:"deliveryHistory,omitempty"`
	ReceivedFabricCuts []receivedCutResponse `json:"receivedFabricCuts,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	Warning            string                `json:"warning,omitempty"`
}

func toOrderResponse(o ProcessingOrder) orderResponse {
	resp := orderResponse{
		ID:               o.ID,
		OrderFormNumber:  o.OrderFormNumber,
		ProcessingCenter: o.ProcessingCenter,
		Processes:        o.Processes,
		VehicleNumber:    o.VehicleNumber,
		DeliveryDate:     o.DeliveryDate,
		TotalQuantity:    o.TotalQuantity.StringFixed(2),
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
	}
	for _, sc := range o.SentFabricCuts {
		resp.SentFabricCuts = append(resp.SentFabricCuts, sentCutResponse{
			FabricCutID:  sc.FabricCutID,
			FabricNumber: sc.FabricNumber,
			WarpNumber:   sc.WarpNumber,
			OrderRef:     sc.OrderRef,
			Quantity:     sc.Quantity.StringFixed(2),
		})
	}
	for _, d := range o.Deliveries {
		resp.Deliveries = append(resp.Deliveries, deliveryResponse{
			DeliveryNumber:        d.DeliveryNumber,
			ReceivedBy:            d.ReceivedBy,
			Location:              string(d.Location),
			CutsReceived:          d.CutsReceived,
			TotalQuantityReceived: d.TotalQuantityReceived.StringFixed(2),
			ReceivedAt:            d.ReceivedAt,
		})
	}
	for _, rc := range o.ReceivedCuts {
		resp.ReceivedFabricCuts = append(resp.ReceivedFabricCuts, receivedCutResponse{
			FabricNumber: rc.FabricNumber,
			Quantity:     rc.Quantity.StringFixed(2),
		})
	}
	return resp
}

func parseQuantities(raw []string) ([]decimal.Decimal, bool) {
	out := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		qty, err := decimal.NewFromString(s)
		if err != nil {
			return nil, false
		}
		out = append(out, qty)
	}
	return out, true
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	deliveryDate := time.Now()
	if req.DeliveryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deliveryDate must be YYYY-MM-DD")
			return
		}
		deliveryDate = parsed
	}
	result, err := h.service.Send(r.Context(), SendInput{
		FabricCutIDs:     req.FabricCutIDs,
		ProcessingCenter: req.ProcessingCenter,
		Processes:        req.Processes,
		VehicleNumber:    req.VehicleNumber,
		DeliveryDate:     deliveryDate,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("send to processing", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	resp := toOrderResponse(result.Order)
	resp.Warning = result.MixedOrdersWarning
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) receiveDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req deliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantities, ok := parseQuantities(req.Quantities)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantities must be decimal numbers")
		return
	}
	order, err := h.service.ReceiveDelivery(r.Context(), DeliveryInput{
		OrderID:        orderID,
		DeliveryNumber: req.DeliveryNumber,
		ReceivedBy:     req.ReceivedBy,
		Location:       shared.Location(req.Location),
		CutQuantities:  quantities,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("receive delivery", slog.Any("error", err), slog.Int64("order_id", orderID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) editDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid delivery index")
		return
	}
	var req deliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantities, ok := parseQuantities(req.Quantities)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantities must be decimal numbers")
		return
	}
	order, err := h.service.EditDelivery(r.Context(), EditDeliveryInput{
		OrderID:        orderID,
		DeliveryIndex:  index,
		DeliveryNumber: req.DeliveryNumber,
		ReceivedBy:     req.ReceivedBy,
		Location:       shared.Location(req.Location),
		CutQuantities:  quantities,
	})
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("edit delivery", slog.Any("error", err), slog.Int64("order_id", orderID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) deleteDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid delivery index")
		return
	}
	order, err := h.service.DeleteDelivery(r.Context(), orderID, index)
	if err != nil {
		if shared.KindOf(err) == "" {
			h.logger.Error("delete delivery", slog.Any("error", err), slog.Int64("order_id", orderID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.CheckFabricCutUsed(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"isUsed":          usage.IsUsed,
		"orderFormNumber": usage.OrderFormNumber,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.service.Get(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	summary, err := h.service.Summarize(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orderFormNumber":  summary.OrderFormNumber,
		"sentCuts":         summary.SentCuts,
		"sentQuantity":     summary.SentQuantity.StringFixed(2),
		"receivedCuts":     summary.ReceivedCuts,
		"receivedQuantity": summary.ReceivedQuantity.StringFixed(2),
		"shortageCuts":     summary.ShortageCuts,
		"shortageQuantity": summary.ShortageQuantity.StringFixed(2),
		"status":           string(summary.Status),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.List(r.Context(), ListFilters{
		Status:           r.URL.Query().Get("status"),
		ProcessingCenter: r.URL.Query().Get("center"),
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		h.logger.Error("list processing orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toOrderResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": resp, "total": total})
}
