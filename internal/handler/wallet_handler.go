package handler

import (
	"strings"

	"wallet-provider/internal/chains"
	"wallet-provider/internal/handler/request"
	"wallet-provider/internal/handler/response"
	"wallet-provider/internal/session"
	"wallet-provider/internal/signer"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/validator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WalletHandler 钱包自身 UI 使用的状态接口，不经过 Provider 的审批流程
type WalletHandler struct {
	signer signer.Signer
	state  *session.State
	chains *chains.Table
}

func NewWalletHandler(s signer.Signer, state *session.State, table *chains.Table) *WalletHandler {
	return &WalletHandler{signer: s, state: state, chains: table}
}

type walletState struct {
	Locked   bool     `json:"locked"`
	Account  string   `json:"account"`
	ChainID  string   `json:"chain_id"`
	Accounts []string `json:"accounts"`
}

// State 当前锁定状态、账户和链
// @Summary Wallet state
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/state [get]
func (h *WalletHandler) State(c *gin.Context) {
	st := walletState{
		Locked:   h.signer.IsLocked(),
		ChainID:  chains.Hex(h.state.ChainID()),
		Accounts: []string{},
	}
	if acct := h.state.Account(); acct != (common.Address{}) {
		st.Account = strings.ToLower(acct.Hex())
	}
	for _, a := range h.signer.Accounts() {
		st.Accounts = append(st.Accounts, strings.ToLower(a.Hex()))
	}
	response.Success(c, st)
}

// Unlock 钱包 UI 主动解锁
// @Summary Unlock
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body request.UnlockRequest true "Password"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/unlock [post]
func (h *WalletHandler) Unlock(c *gin.Context) {
	var req request.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	if err := h.signer.Unlock(req.Password); err != nil {
		logger.Warn("unlock failed", zap.Error(err))
		response.Error(c, errno.ErrSignerUnavailable.WithMessage("unlock failed"))
		return
	}
	if accts := h.signer.Accounts(); len(accts) > 0 {
		h.state.InitAccount(accts[0])
	}
	response.Success(c, nil)
}

// Lock 锁定签名器，已有 session 保留
// @Summary Lock
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/lock [post]
func (h *WalletHandler) Lock(c *gin.Context) {
	h.signer.Lock()
	logger.Info("wallet locked")
	response.Success(c, nil)
}

// SwitchAccount 切换当前账户；已连接的 origin 在下一次审批前会因账户不一致而失败
// @Summary Switch account
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body request.SwitchAccountRequest true "Account"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/account [post]
func (h *WalletHandler) SwitchAccount(c *gin.Context) {
	var req request.SwitchAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	addr := common.HexToAddress(req.Address)
	known := false
	for _, a := range h.signer.Accounts() {
		if a == addr {
			known = true
			break
		}
	}
	if !known {
		response.Error(c, errno.ErrInvalidParams.WithMessage("unknown account"))
		return
	}
	h.state.SetAccount(addr)
	logger.Info("account switched", zap.String("account", addr.Hex()))
	response.Success(c, gin.H{"account": strings.ToLower(addr.Hex())})
}

// SwitchChain 切换钱包默认链 (新连接的 origin 使用)
// @Summary Switch chain
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body request.SwitchChainRequest true "Chain"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/chain [post]
func (h *WalletHandler) SwitchChain(c *gin.Context) {
	var req request.SwitchChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	id, err := chains.ParseID(req.ChainID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.chains.Lookup(id); err != nil {
		response.Error(c, err)
		return
	}
	h.state.SetChainID(id)
	logger.Info("default chain switched", zap.Uint64("chain_id", id))
	response.Success(c, gin.H{"chain_id": chains.Hex(id)})
}

// Chains 支持的链
// @Summary Supported chains
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/chains [get]
func (h *WalletHandler) Chains(c *gin.Context) {
	response.Success(c, h.chains.List())
}
