package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentResult 是网关返回的结果，ResultCode 对本服务是不透明的。
type PaymentResult struct {
	ResultCode string
}

// PaymentGateway 是外部支付处理方的出站端口。
// 实现必须遵守 ctx 的截止时间，超时后不能再返回成功。
type PaymentGateway interface {
	Pay(ctx context.Context, amount decimal.Decimal) (PaymentResult, error)
}

// ResultPolicy 判定网关结果码是否代表支付成功。
type ResultPolicy interface {
	IsSuccess(result PaymentResult) (bool, error)
}
