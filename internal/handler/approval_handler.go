package handler

import (
	"wallet-provider/internal/approval"
	"wallet-provider/internal/handler/request"
	"wallet-provider/internal/handler/response"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ApprovalHandler 钱包 UI 轮询并处理审批
type ApprovalHandler struct {
	desk   *approval.Desk
	broker *approval.Broker
}

func NewApprovalHandler(desk *approval.Desk, broker *approval.Broker) *ApprovalHandler {
	return &ApprovalHandler{desk: desk, broker: broker}
}

// Current 当前展示的审批，没有时 data 为空对象
// @Summary Current approval
// @Tags Approval
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/approvals/current [get]
func (h *ApprovalHandler) Current(c *gin.Context) {
	t, ok := h.desk.Current()
	if !ok {
		response.Success(c, nil)
		return
	}
	response.Success(c, t)
}

// List 排队中的审批 (含当前展示的)
// @Summary Pending approvals
// @Tags Approval
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	response.Success(c, h.broker.Pending())
}

// Approve 同意当前审批，payload 原样交给发起请求的 handler
// @Summary Approve
// @Tags Approval
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param request body request.ApproveRequest false "Approval payload"
// @Success 200 {object} response.Response
// @Router /api/v1/approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req request.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errno.ErrBind)
			return
		}
	}
	h.decide(c, approval.Decision{Approved: true, Payload: req.Payload})
}

// Reject 拒绝当前审批，dapp 收到 4001
// @Summary Reject
// @Tags Approval
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param request body request.RejectRequest false "Reject reason"
// @Success 200 {object} response.Response
// @Router /api/v1/approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req request.RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errno.ErrBind)
			return
		}
	}
	h.decide(c, approval.Decision{Approved: false, Reason: req.Reason})
}

func (h *ApprovalHandler) decide(c *gin.Context, dec approval.Decision) {
	id := c.Param("id")
	if err := h.desk.Decide(id, dec); err != nil {
		response.Error(c, err)
		return
	}
	logger.Info("approval decided", zap.String("id", id), zap.Bool("approved", dec.Approved))
	response.Success(c, gin.H{"id": id, "approved": dec.Approved})
}
