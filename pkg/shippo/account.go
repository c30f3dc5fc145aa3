package shippo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
)

// TestConnection 依次尝试 user、user/、carrier_accounts，任一成功即视为连通
func (c *Client) TestConnection(ctx context.Context) bool {
	for _, endpoint := range []string{"user", "user/", "carrier_accounts"} {
		if _, err := c.request(ctx, http.MethodGet, endpoint, nil); err == nil {
			c.logger.Infof(ctx, "[Shippo] connection test successful using %s endpoint", endpoint)
			return true
		}
	}
	c.logger.Errorf(ctx, "[Shippo] connection test failed on all endpoints")
	return false
}

type validationMessage struct {
	Text string `json:"text"`
}

type addressResponse struct {
	ObjectID          string `json:"object_id"`
	Name              string `json:"name"`
	Street1           string `json:"street1"`
	Street2           string `json:"street2"`
	City              string `json:"city"`
	State             string `json:"state"`
	Zip               string `json:"zip"`
	Country           string `json:"country"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	ValidationResults *struct {
		IsValid  bool                `json:"is_valid"`
		Messages []validationMessage `json:"messages"`
	} `json:"validation_results"`
}

// ValidateAddress 调用服务商地址校验，返回规范化后的地址
func (c *Client) ValidateAddress(ctx context.Context, addr model.Address) (*model.Address, error) {
	payload := toAddressPayload(addr)
	payload.Validate = true

	body, err := c.request(ctx, http.MethodPost, "addresses", payload)
	if err != nil {
		return nil, fmt.Errorf("validate address: %w", err)
	}

	var resp addressResponse
	if err := decode("addresses", body, &resp); err != nil {
		return nil, fmt.Errorf("validate address: %w", err)
	}

	if resp.ValidationResults != nil && !resp.ValidationResults.IsValid {
		texts := make([]string, 0, len(resp.ValidationResults.Messages))
		for _, m := range resp.ValidationResults.Messages {
			texts = append(texts, m.Text)
		}
		c.logger.Warnf(ctx, "[Shippo] address validation failed: %s", strings.Join(texts, "; "))
		return nil, errorutil.Validation("address is not deliverable", strings.Join(texts, "; "))
	}

	return &model.Address{
		Name:       resp.Name,
		Street1:    resp.Street1,
		Street2:    resp.Street2,
		City:       resp.City,
		State:      resp.State,
		PostalCode: resp.Zip,
		Country:    resp.Country,
		Phone:      resp.Phone,
		Email:      resp.Email,
	}, nil
}

// CarrierAccount 服务商账户下启用的承运商账号
type CarrierAccount struct {
	ObjectID  string `json:"object_id"`
	Carrier   string `json:"carrier"`
	AccountID string `json:"account_id"`
	Active    bool   `json:"active"`
	Test      bool   `json:"test"`
}

// CarrierAccounts 查询承运商账号列表
func (c *Client) CarrierAccounts(ctx context.Context) ([]CarrierAccount, error) {
	body, err := c.request(ctx, http.MethodGet, "carrier_accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("get carrier accounts: %w", err)
	}

	var resp struct {
		Results []CarrierAccount `json:"results"`
	}
	if err := decode("carrier_accounts", body, &resp); err != nil {
		return nil, fmt.Errorf("get carrier accounts: %w", err)
	}
	return resp.Results, nil
}
