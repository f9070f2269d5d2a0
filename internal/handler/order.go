package handler

import (
	"errors"
	"net/http"
	"pharmacy-payments/internal/dto"
	"pharmacy-payments/internal/service"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("id")

	var req dto.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing status")
	}

	order, err := h.orderService.UpdateStatus(ctx, orderID, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"order_id": order.ID,
		"status":   order.Status,
	})
}
