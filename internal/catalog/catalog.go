// Package catalog 承运商与服务等级的静态目录
//
// 费率过滤、标签生成与管理端下拉选项共用同一份目录。
package catalog

import (
	"sort"
	"strings"
)

// Service 服务等级
type Service struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Carrier 承运商
type Carrier struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Services []Service `json:"services"`
}

var carriers = []Carrier{
	{
		Code: "fedex",
		Name: "FedEx",
		Services: []Service{
			{"fedex_ground", "Ground"},
			{"fedex_express_saver", "Express Saver"},
			{"fedex_2day", "2Day"},
			{"fedex_2day_am", "2Day A.M."},
			{"fedex_priority_overnight", "Priority Overnight"},
			{"fedex_standard_overnight", "Standard Overnight"},
			{"fedex_first_overnight", "First Overnight"},
		},
	},
	{
		Code: "ups",
		Name: "UPS",
		Services: []Service{
			{"ups_ground", "Ground"},
			{"ups_3_day_select", "3 Day Select"},
			{"ups_second_day_air", "2nd Day Air"},
			{"ups_next_day_air_saver", "Next Day Air Saver"},
			{"ups_next_day_air", "Next Day Air"},
			{"ups_next_day_air_early", "Next Day Air Early"},
		},
	},
	{
		Code: "usps",
		Name: "USPS",
		Services: []Service{
			{"usps_priority", "Priority Mail"},
			{"usps_priority_express", "Priority Mail Express"},
			{"usps_first_class", "First Class Package"},
			{"usps_ground_advantage", "Ground Advantage"},
			{"usps_parcel_select", "Parcel Select"},
			{"usps_media_mail", "Media Mail"},
		},
	},
}

// serviceIndex service code -> carrier code
var serviceIndex = func() map[string]string {
	idx := make(map[string]string)
	for _, c := range carriers {
		for _, s := range c.Services {
			idx[s.Code] = c.Code
		}
	}
	return idx
}()

// Carriers 返回全部承运商（按 code 排序）
func Carriers() []Carrier {
	out := make([]Carrier, len(carriers))
	for i, c := range carriers {
		c.Services = append([]Service(nil), c.Services...)
		out[i] = c
	}
	return out
}

// Codes 返回全部承运商 code
func Codes() []string {
	codes := make([]string, 0, len(carriers))
	for _, c := range carriers {
		codes = append(codes, c.Code)
	}
	return codes
}

// Lookup 按 code 查询承运商
func Lookup(code string) (Carrier, bool) {
	code = NormalizeCarrier(code)
	for _, c := range carriers {
		if c.Code == code {
			return c, true
		}
	}
	return Carrier{}, false
}

// IsSupportedCarrier 是否为目录内的承运商
func IsSupportedCarrier(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// IsKnownService 是否为目录内的服务等级
func IsKnownService(code string) bool {
	_, ok := serviceIndex[code]
	return ok
}

// CarrierOfService 返回服务等级所属承运商
func CarrierOfService(code string) (string, bool) {
	carrier, ok := serviceIndex[code]
	return carrier, ok
}

// ServiceName 返回服务等级展示名
func ServiceName(code string) (string, bool) {
	carrier, ok := serviceIndex[code]
	if !ok {
		return "", false
	}
	c, _ := Lookup(carrier)
	for _, s := range c.Services {
		if s.Code == code {
			return s.Name, true
		}
	}
	return "", false
}

// AllServices 返回 service code -> "<Carrier> - <Service>"
func AllServices() map[string]string {
	out := make(map[string]string, len(serviceIndex))
	for _, c := range carriers {
		for _, s := range c.Services {
			out[s.Code] = c.Name + " - " + s.Name
		}
	}
	return out
}

// NormalizeCarrier 将服务商返回的承运商名称（"USPS"、"FedEx"）归一为目录 code
func NormalizeCarrier(provider string) string {
	code := strings.ToLower(strings.TrimSpace(provider))
	code = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(code)
	return code
}

// NormalizeCarriers 归一、去重并排序
func NormalizeCarriers(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = NormalizeCarrier(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
