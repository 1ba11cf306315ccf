package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stockpay/internal/pkg/httpclient"
	"stockpay/internal/service/checkout/domain/port"
)

const bankPayPath = "/pay"

// ServiceResolver 通过注册中心把服务名解析为一个实例地址，*nacos.Client 满足该接口
type ServiceResolver interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

type payRequest struct {
	Price decimal.Decimal `json:"price"`
}

type payResponse struct {
	ResultCode string `json:"resultCode"`
}

// BankHTTPAdapter 实现 port.PaymentGateway，调用银行的 POST /pay。
// 配置了 resolver 时每次调用都重新发现实例，否则使用固定的 baseURL。
type BankHTTPAdapter struct {
	client      *httpclient.Client
	baseURL     string
	resolver    ServiceResolver
	serviceName string
}

func NewBankHTTPAdapter(client *httpclient.Client, baseURL string) *BankHTTPAdapter {
	return &BankHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewDiscoveredBankHTTPAdapter 通过 resolver 查找名为 serviceName 的银行实例。
func NewDiscoveredBankHTTPAdapter(client *httpclient.Client, resolver ServiceResolver, serviceName string) *BankHTTPAdapter {
	return &BankHTTPAdapter{client: client, resolver: resolver, serviceName: serviceName}
}

// Pay 只负责传输，结果码原样返回，是否成功由 ResultPolicy 判定。
func (a *BankHTTPAdapter) Pay(ctx context.Context, amount decimal.Decimal) (port.PaymentResult, error) {
	base, err := a.endpoint()
	if err != nil {
		return port.PaymentResult{}, err
	}

	var resp payResponse
	if err := a.client.PostJSON(ctx, base+bankPayPath, payRequest{Price: amount}, &resp); err != nil {
		return port.PaymentResult{}, fmt.Errorf("bank call failed: %w", err)
	}
	if resp.ResultCode == "" {
		return port.PaymentResult{}, fmt.Errorf("bank response has no resultCode")
	}
	return port.PaymentResult{ResultCode: resp.ResultCode}, nil
}

func (a *BankHTTPAdapter) endpoint() (string, error) {
	if a.resolver == nil {
		return a.baseURL, nil
	}
	ip, port, err := a.resolver.DiscoverServiceInstance(a.serviceName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", ip, port), nil
}
