package request

type UnlockRequest struct {
	Password string `json:"password" binding:"required"`
}

type SwitchAccountRequest struct {
	Address string `json:"address" binding:"required,eth_addr"`
}

type SwitchChainRequest struct {
	ChainID string `json:"chain_id" binding:"required"`
}
