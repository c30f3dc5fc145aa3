package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
)

// addressPayload 服务商地址结构
type addressPayload struct {
	Name     string `json:"name"`
	Street1  string `json:"street1"`
	Street2  string `json:"street2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Validate bool   `json:"validate,omitempty"`
}

func toAddressPayload(a model.Address) addressPayload {
	return addressPayload{
		Name:    a.Name,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.PostalCode,
		Country: a.Country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

type shipmentRequest struct {
	AddressFrom addressPayload `json:"address_from"`
	AddressTo   addressPayload `json:"address_to"`
	Parcels     []model.Parcel `json:"parcels"`
	Async       bool           `json:"async"`
}

type shipmentResponse struct {
	ObjectID string `json:"object_id"`
	Status   string `json:"status"`
}

// CreateShipment 创建 shipment，返回 object_id
// 失败不重试
func (c *Client) CreateShipment(ctx context.Context, origin, destination model.Address, parcels []model.Parcel) (string, error) {
	body, err := c.request(ctx, http.MethodPost, "shipments", shipmentRequest{
		AddressFrom: toAddressPayload(origin),
		AddressTo:   toAddressPayload(destination),
		Parcels:     parcels,
		Async:       false,
	})
	if err != nil {
		return "", fmt.Errorf("create shipment: %w", err)
	}

	var resp shipmentResponse
	if err := decode("shipments", body, &resp); err != nil {
		return "", fmt.Errorf("create shipment: %w", err)
	}
	if resp.ObjectID == "" {
		c.logger.Errorf(ctx, "[Shippo] no object_id found in shipment response")
		return "", fmt.Errorf("create shipment: %w", errorutil.Malformed("shipment response has no object_id", nil))
	}

	c.logger.Infof(ctx, "[Shippo] shipment created with ID: %s", resp.ObjectID)
	return resp.ObjectID, nil
}

// serviceLevel 服务等级
type serviceLevel struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// flexString 兼容字符串或数字形式的金额
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type rateDTO struct {
	Provider              string        `json:"provider"`
	Servicelevel          *serviceLevel `json:"servicelevel"`
	ServiceLevel          *serviceLevel `json:"service_level"`
	Amount                flexString    `json:"amount"`
	Currency              string        `json:"currency"`
	EstimatedDays         *int          `json:"estimated_days"`
	EstimatedDeliveryDate string        `json:"estimated_delivery_date"`
	ObjectID              string        `json:"object_id"`
}

func (r rateDTO) toRawRate() model.RawRate {
	level := r.Servicelevel
	if level == nil {
		level = r.ServiceLevel
	}
	raw := model.RawRate{
		Carrier:               r.Provider,
		Amount:                strings.TrimSpace(string(r.Amount)),
		Currency:              r.Currency,
		EstimatedDays:         r.EstimatedDays,
		EstimatedDeliveryDate: r.EstimatedDeliveryDate,
		ObjectID:              r.ObjectID,
	}
	if level != nil {
		raw.ServiceToken = level.Token
		raw.ServiceName = level.Name
	}
	return raw
}

type ratesResponse struct {
	Rates   []rateDTO `json:"rates"`
	Results []rateDTO `json:"results"`
}

type shipmentRatesRequest struct {
	Shipment string   `json:"shipment"`
	Carriers []string `json:"carriers"`
}

type carrierAccountRatesRequest struct {
	Shipment        string   `json:"shipment"`
	CarrierAccounts []string `json:"carrier_accounts"`
}

// GetRates 查询 shipment 的费率
// 先请求 shipment-rates，失败后用 rates + carrier_accounts 再试一次
func (c *Client) GetRates(ctx context.Context, shipmentID string, carriers []string) ([]model.RawRate, error) {
	formatted := make([]string, 0, len(carriers))
	for _, carrier := range carriers {
		formatted = append(formatted, strings.ToLower(carrier))
	}

	rates, err := c.fetchRates(ctx, "shipment-rates", shipmentRatesRequest{
		Shipment: shipmentID,
		Carriers: formatted,
	})
	if err == nil {
		return rates, nil
	}

	c.logger.Warnf(ctx, "[Shippo] failed with shipment-rates endpoint, trying rates endpoint: %v", err)

	rates, err = c.fetchRates(ctx, "rates", carrierAccountRatesRequest{
		Shipment:        shipmentID,
		CarrierAccounts: formatted,
	})
	if err != nil {
		c.logger.Errorf(ctx, "[Shippo] failed to get rates: %v", err)
		return nil, fmt.Errorf("get rates: %w", err)
	}
	return rates, nil
}

func (c *Client) fetchRates(ctx context.Context, endpoint string, payload interface{}) ([]model.RawRate, error) {
	body, err := c.request(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	var resp ratesResponse
	if err := decode(endpoint, body, &resp); err != nil {
		return nil, err
	}

	list := resp.Rates
	if len(list) == 0 {
		list = resp.Results
	}

	rates := make([]model.RawRate, 0, len(list))
	for _, dto := range list {
		rates = append(rates, dto.toRawRate())
	}
	c.logger.Infof(ctx, "[Shippo] received %d rates from %s", len(rates), endpoint)
	return rates, nil
}
