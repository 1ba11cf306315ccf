package application

// CheckoutRequest 是一次购买请求。IdempotencyKey 可选，非空时同一个 key 只会被处理一次。
type CheckoutRequest struct {
	ProductID      int64  `json:"productId"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"-"`
}

// ReleaseRequest 是补偿失败后由运维重放的库存归还请求。
type ReleaseRequest struct {
	CheckoutID string `json:"checkoutId"`
	ProductID  int64  `json:"productId"`
	Quantity   int    `json:"quantity"`
}
