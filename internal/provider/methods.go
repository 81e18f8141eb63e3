package provider

import (
	"context"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/registry"
)

type handlerFunc func(ctx context.Context, f *flow) (any, error)

type method struct {
	desc    registry.MethodDescriptor
	handler handlerFunc
}

// methods 静态方法表，启动时构建一次
func (p *Provider) methods() ([]registry.MethodDescriptor, map[string]handlerFunc) {
	table := []method{
		// 账户与权限
		{registry.MethodDescriptor{Name: "eth_accounts", Capability: registry.Safe}, p.accounts},
		{registry.MethodDescriptor{Name: "eth_coinbase", Capability: registry.Safe}, p.coinbase},
		{registry.MethodDescriptor{Name: "eth_requestAccounts", Capability: registry.Private}, p.requestAccounts},
		{registry.MethodDescriptor{Name: "wallet_getPermissions", Capability: registry.Safe}, p.getPermissions},
		{registry.MethodDescriptor{Name: "wallet_requestPermissions", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindConnect, Validator: p.validatePermissionRequest}, p.requestPermissions},
		{registry.MethodDescriptor{Name: "wallet_revokePermissions", Capability: registry.Private}, p.revokePermissions},

		// 链
		{registry.MethodDescriptor{Name: "eth_chainId", Capability: registry.Safe}, p.chainID},
		{registry.MethodDescriptor{Name: "net_version", Capability: registry.Safe}, p.netVersion},
		{registry.MethodDescriptor{Name: "wallet_switchEthereumChain", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindAddChain, Validator: p.validateChainChange}, p.switchChain},
		{registry.MethodDescriptor{Name: "wallet_addEthereumChain", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindAddChain, Validator: p.validateChainChange}, p.switchChain},

		// 签名
		{registry.MethodDescriptor{Name: "personal_sign", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignText, Validator: p.validatePersonalSign}, p.personalSign},
		{registry.MethodDescriptor{Name: "eth_signTypedData", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignTypedData, Validator: p.validateTypedData}, p.signTypedData},
		{registry.MethodDescriptor{Name: "eth_signTypedData_v1", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignTypedData, Validator: p.validateTypedData}, p.signTypedData},
		{registry.MethodDescriptor{Name: "eth_signTypedData_v3", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignTypedData, Validator: p.validateTypedData}, p.signTypedData},
		{registry.MethodDescriptor{Name: "eth_signTypedData_v4", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignTypedData, Validator: p.validateTypedData}, p.signTypedData},
		{registry.MethodDescriptor{Name: "eth_sign", Deprecated: true}, nil},

		// 交易
		{registry.MethodDescriptor{Name: "eth_sendTransaction", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindSignTx, Validator: p.validateSendTransaction}, p.sendTransaction},
		{registry.MethodDescriptor{Name: "wallet_getPendingTransactions", Capability: registry.Private,
			InternalOnly: true}, p.pendingTransactions},
		{registry.MethodDescriptor{Name: "wallet_recommendNonce", Capability: registry.Private,
			InternalOnly: true}, p.recommendNonce},

		// 资产
		{registry.MethodDescriptor{Name: "wallet_watchAsset", Capability: registry.RequiresApproval,
			ApprovalKind: approval.KindAddAsset, Validator: p.validateWatchAsset}, p.watchAsset},
	}

	descs := make([]registry.MethodDescriptor, 0, len(table))
	handlers := make(map[string]handlerFunc, len(table))
	for _, m := range table {
		descs = append(descs, m.desc)
		if m.handler != nil {
			handlers[m.desc.Name] = m.handler
		}
	}
	return descs, handlers
}
