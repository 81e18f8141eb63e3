package request

import "encoding/json"

type ApproveRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
