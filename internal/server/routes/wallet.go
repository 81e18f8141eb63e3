package routes

import (
	"wallet-provider/internal/handler"

	"github.com/gin-gonic/gin"
)

func RegisterWalletRoutes(rg *gin.RouterGroup, h *handler.WalletHandler) {
	walletGroup := rg.Group("/wallet")
	{
		walletGroup.GET("/state", h.State)
		walletGroup.GET("/chains", h.Chains)
		walletGroup.POST("/unlock", h.Unlock)
		walletGroup.POST("/lock", h.Lock)
		walletGroup.POST("/account", h.SwitchAccount)
		walletGroup.POST("/chain", h.SwitchChain)
	}
}
